// Package dispatcher keeps the worker pool consuming the task queue and is the
// single entry point for enqueueing crawl tasks.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/metrics"
)

// Runner is a queue consumer the dispatcher keeps alive.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans queued tasks out to a fixed pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts every worker and blocks until ctx ends and all of them return.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("worker exited with panic", zap.Int("index", i), zap.Any("panic", r))
				}
			}()
			w.Run(ctx)
		}()
	}
	d.logger.Info("workers started", zap.Int("count", len(d.workers)))
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("workers stopped")
}

// Enqueue validates task and hands it to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task crawler.TaskRequest) error {
	if task.TargetID == "" || task.Platform == "" {
		return fmt.Errorf("%w: task %s needs a target and platform", crawler.ErrInvalidTarget, task.TaskID)
	}
	if task.Offset < 0 {
		return fmt.Errorf("%w: task %s has negative offset %d", crawler.ErrInvalidTarget, task.TaskID, task.Offset)
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		if errors.Is(err, crawler.ErrQueueClosed) {
			d.logger.Warn("task dropped, queue closed", zap.String("task_id", task.TaskID))
		}
		return fmt.Errorf("queue enqueue %s: %w", task.TaskID, err)
	}
	metrics.ObserveEnqueue(task.Platform, string(task.Trigger))
	d.logger.Debug("task enqueued",
		zap.String("task_id", task.TaskID),
		zap.String("target_id", task.TargetID),
		zap.Int("offset", task.Offset),
		zap.String("trigger", string(task.Trigger)),
	)
	return nil
}
