// Package scheduler turns per-platform ticks and admin triggers into queued Crawl Tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// Enqueuer accepts tasks for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, task crawler.TaskRequest) error
}

// Ticker is a clock that can also drive periodic callbacks.
type Ticker interface {
	crawler.Clock
	Tick(d time.Duration) (<-chan time.Time, func())
}

// Scheduler dispatches offset-0 tasks for every due target of a platform.
type Scheduler struct {
	intervals map[string]time.Duration
	targets   crawler.TargetStore
	queue     Enqueuer
	clock     Ticker
	ids       crawler.IDGenerator
	logger    *zap.Logger
}

// New creates a Scheduler. intervals maps platform to tick period; non-positive periods never tick.
func New(
	intervals map[string]time.Duration,
	targets crawler.TargetStore,
	queue Enqueuer,
	clock Ticker,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]time.Duration, len(intervals))
	for platform, every := range intervals {
		copied[platform] = every
	}
	return &Scheduler{
		intervals: copied,
		targets:   targets,
		queue:     queue,
		clock:     clock,
		ids:       ids,
		logger:    logger.Named("scheduler"),
	}
}

// Platforms returns the scheduled platform names in sorted order.
func (s *Scheduler) Platforms() []string {
	out := make([]string, 0, len(s.intervals))
	for platform := range s.intervals {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

// Run ticks every platform independently until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, platform := range s.Platforms() {
		every := s.intervals[platform]
		if every <= 0 {
			s.logger.Info("platform has no tick interval", zap.String("platform", platform))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, platform, every)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, platform string, every time.Duration) {
	ticks, stop := s.clock.Tick(every)
	defer stop()
	s.logger.Info("platform schedule started",
		zap.String("platform", platform),
		zap.Duration("interval", every),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if _, err := s.Tick(ctx, platform); err != nil && ctx.Err() == nil {
				s.logger.Warn("tick failed", zap.String("platform", platform), zap.Error(err))
			}
		}
	}
}

// Tick enqueues one offset-0 task per enabled, due target of platform, highest priority first.
// A failing target does not stop the rest; Tick returns the number of tasks
// enqueued and the joined per-target errors.
func (s *Scheduler) Tick(ctx context.Context, platform string) (int, error) {
	targets, err := s.targets.ListEnabled(ctx, platform)
	if err != nil {
		return 0, fmt.Errorf("list enabled targets: %w", err)
	}
	// Stores already order by priority; a stable sort keeps that contract for any implementation.
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority > targets[j].Priority })

	now := s.clock.Now()
	enqueued := 0
	var errs []error
	for _, target := range targets {
		if !target.Due(now) {
			s.logger.Debug("target not due", zap.String("target_id", target.ID))
			continue
		}
		task, err := s.newTask(target, crawler.TriggerSchedule, false, now)
		if err == nil {
			err = s.queue.Enqueue(ctx, task)
		}
		if err != nil {
			s.logger.Warn("enqueue target failed", zap.String("target_id", target.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("enqueue target %s: %w", target.ID, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		enqueued++
	}
	s.logger.Debug("tick dispatched",
		zap.String("platform", platform),
		zap.Int("targets", len(targets)),
		zap.Int("enqueued", enqueued),
		zap.Int("failed", len(errs)),
	)
	return enqueued, errors.Join(errs...)
}

// TriggerNow enqueues an on-demand run of one target at offset 0.
// ignoreRepetitive=false forces re-processing of identifiers already in the dedup cache.
func (s *Scheduler) TriggerNow(ctx context.Context, targetID string, ignoreRepetitive bool) (crawler.TaskRequest, error) {
	target, err := s.targets.GetTarget(ctx, targetID)
	if err != nil {
		return crawler.TaskRequest{}, fmt.Errorf("load target %s: %w", targetID, err)
	}
	if target.DeletedAt != nil {
		return crawler.TaskRequest{}, fmt.Errorf("target %s: %w", targetID, crawler.ErrTargetNotFound)
	}
	task, err := s.newTask(target, crawler.TriggerManual, !ignoreRepetitive, s.clock.Now())
	if err != nil {
		return crawler.TaskRequest{}, err
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return crawler.TaskRequest{}, fmt.Errorf("enqueue target %s: %w", targetID, err)
	}
	s.logger.Info("manual crawl queued",
		zap.String("target_id", targetID),
		zap.String("task_id", task.TaskID),
		zap.Bool("force_repeat", task.ForceRepeat),
	)
	return task, nil
}

func (s *Scheduler) newTask(
	target crawler.CrawlTarget,
	trigger crawler.TaskTrigger,
	force bool,
	now time.Time,
) (crawler.TaskRequest, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.TaskRequest{}, fmt.Errorf("generate task id: %w", err)
	}
	if id == "" {
		return crawler.TaskRequest{}, errors.New("generate task id: empty id")
	}
	return crawler.TaskRequest{
		TaskID:      id,
		TargetID:    target.ID,
		Platform:    target.Platform,
		Offset:      0,
		ForceRepeat: force,
		Trigger:     trigger,
		Submitted:   now.Unix(),
	}, nil
}
