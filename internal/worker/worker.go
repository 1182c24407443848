// Package worker executes Crawl Tasks: one page of one target, guarded by the
// platform's Concurrency Gate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/continuation"
	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/metrics"
)

// Default per-platform settings applied when a platform is absent from Config.
const (
	DefaultGateTimeout    = 10 * time.Minute
	DefaultOffsetParam    = "start"
	DefaultDedupTTL       = 30 * 24 * time.Hour
	DefaultEnqueueTimeout = 5 * time.Second
)

const (
	minDequeueBackoff = 50 * time.Millisecond
	maxDequeueBackoff = 5 * time.Second
)

// DefaultFields are extracted from every candidate when a platform lists none.
var DefaultFields = []string{
	string(crawler.FieldTitle),
	string(crawler.FieldCompany),
	string(crawler.FieldLocation),
}

// PlatformConfig tunes tasks for one platform family.
type PlatformConfig struct {
	PageSize    int
	GateKey     string
	GateTimeout time.Duration
	OffsetParam string
	Fields      []string
}

// Config controls Worker behavior.
type Config struct {
	Platforms       map[string]PlatformConfig
	DedupTTL        time.Duration
	BlockedKeywords []string
	EnqueueTimeout  time.Duration
}

// TracerName names the tracer used when Dependencies.Tracer is nil.
const TracerName = "github.com/JakeFAU/social-harvester/internal/worker"

// Dependencies are the collaborators a Worker drives. Sources is keyed by platform.
// Tracer defaults to the global provider's tracer.
type Dependencies struct {
	Queue    crawler.Queue
	Targets  crawler.TargetStore
	Sources  map[string]crawler.PageSource
	Dedup    crawler.DedupCache
	Gate     crawler.Gate
	Records  crawler.RecordStore
	Notifier crawler.Notifier
	Clock    crawler.Clock
	IDs      crawler.IDGenerator
	Tracer   trace.Tracer
}

// Worker consumes queued TaskRequests and executes them.
type Worker struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Dependencies, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(TracerName)
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming queue items until the context finishes.
// Dequeue failures back off exponentially up to maxDequeueBackoff.
func (w *Worker) Run(ctx context.Context) {
	backoff := minDequeueBackoff
	for {
		req, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) || errors.Is(err, io.EOF) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxDequeueBackoff)
			continue
		}
		backoff = minDequeueBackoff
		w.logger.Debug("dequeued task", zap.String("task_id", req.TaskID), zap.String("target_id", req.TargetID))
		result := w.Execute(ctx, req)
		w.continueChain(ctx, req, result)
	}
}

// platform resolves the settings for a platform, filling defaults.
func (w *Worker) platform(name string) PlatformConfig {
	pc := w.cfg.Platforms[name]
	if pc.PageSize <= 0 {
		pc.PageSize = crawler.DefaultPageSize
	}
	if pc.GateKey == "" {
		pc.GateKey = name
	}
	if pc.GateTimeout <= 0 {
		pc.GateTimeout = DefaultGateTimeout
	}
	if pc.OffsetParam == "" {
		pc.OffsetParam = DefaultOffsetParam
	}
	if len(pc.Fields) == 0 {
		pc.Fields = DefaultFields
	}
	return pc
}

// taskRun carries the mutable state of one Execute call.
type taskRun struct {
	req      crawler.TaskRequest
	target   crawler.CrawlTarget
	platform PlatformConfig
	gateKey  string
	holder   string
	result   crawler.TaskResult
	logger   *zap.Logger
}

func (r *taskRun) platformName() string {
	if r.target.Platform != "" {
		return r.target.Platform
	}
	return r.req.Platform
}

func (r *taskRun) enter(state crawler.TaskState) {
	r.result.Path = append(r.result.Path, state)
	r.result.State = state
	r.logger.Debug("task state", zap.String("state", string(state)))
}

func (r *taskRun) fail(err error) {
	r.result.Err = err
	r.enter(crawler.StateFailed)
	switch crawler.Classify(err) {
	case crawler.ClassFatal:
		r.logger.Error("task failed", zap.String("class", crawler.ClassFatal.String()), zap.Error(err))
	default:
		r.logger.Warn("task failed", zap.String("class", crawler.Classify(err).String()), zap.Error(err))
	}
}

// Execute runs one Crawl Task to DONE or FAILED. It never panics and always
// releases the gate it acquired.
func (w *Worker) Execute(ctx context.Context, req crawler.TaskRequest) (result crawler.TaskResult) {
	ctx, span := w.deps.Tracer.Start(ctx, "crawl.task", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("task.target_id", req.TargetID),
		attribute.String("task.platform", req.Platform),
		attribute.Int("task.offset", req.Offset),
	))
	run := &taskRun{
		req:    req,
		result: crawler.TaskResult{TaskID: req.TaskID},
		logger: w.logger.With(
			zap.String("task_id", req.TaskID),
			zap.String("target_id", req.TargetID),
			zap.Int("offset", req.Offset),
		),
	}
	metrics.IncActiveTasks()
	defer func() {
		if p := recover(); p != nil {
			run.fail(fmt.Errorf("task panic: %v", p))
		}
		w.release(ctx, run)
		metrics.DecActiveTasks()
		metrics.ObserveTask(run.platformName(), string(run.result.State))
		result = run.result
		endSpan(span, result)
	}()

	run.enter(crawler.StateInit)
	if !w.resolve(ctx, run) {
		return
	}
	if !w.acquire(ctx, run) {
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, run.platform.GateTimeout)
	defer cancel()

	run.enter(crawler.StateNavigating)
	session, err := w.navigate(taskCtx, run)
	if err != nil {
		run.fail(err)
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			run.logger.Warn("close session failed", zap.Error(err))
		}
	}()

	run.enter(crawler.StateEnumerating)
	handles, err := session.Items(taskCtx)
	switch {
	case err == nil:
	case crawler.Classify(err) == crawler.ClassPageAbort:
		run.logger.Warn("page re-rendered during enumeration", zap.Error(err))
		run.result.Stats.Aborted = true
	default:
		run.fail(fmt.Errorf("enumerate items: %w", err))
		return
	}

	if len(handles) > 0 {
		run.enter(crawler.StateItemProcessing)
		w.processItems(taskCtx, run, handles)
	}

	run.enter(crawler.StateSummarized)
	w.summarize(ctx, run, len(handles))
	run.enter(crawler.StateDone)
	run.logger.Info("task finished",
		zap.Int("candidates", run.result.Stats.Candidates),
		zap.Int("notified", run.result.Stats.Notified),
		zap.Int("ignored", run.result.Stats.Ignored),
		zap.Int("duplicates", run.result.Stats.Duplicates),
		zap.Int("skipped", run.result.Stats.Skipped),
	)
	return
}

// endSpan records the task outcome on span and ends it.
func endSpan(span trace.Span, result crawler.TaskResult) {
	span.SetAttributes(
		attribute.String("task.state", string(result.State)),
		attribute.Int("task.notified", result.Stats.Notified),
		attribute.Int("task.candidates", result.Stats.Candidates),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, crawler.Classify(result.Err).String())
	}
	span.End()
}

// resolve loads and validates the target. It reports false when the task has
// already reached a terminal state.
func (w *Worker) resolve(ctx context.Context, run *taskRun) bool {
	target, err := w.deps.Targets.GetTarget(ctx, run.req.TargetID)
	if err != nil {
		run.fail(fmt.Errorf("resolve target %s: %w", run.req.TargetID, err))
		return false
	}
	run.target = target
	if err := target.Validate(); err != nil {
		run.fail(err)
		return false
	}
	if !target.Enabled || target.DeletedAt != nil {
		run.logger.Info("target disabled, skipping")
		run.enter(crawler.StateDone)
		return false
	}
	if _, ok := w.deps.Sources[target.Platform]; !ok {
		run.fail(fmt.Errorf("%w: no page source for platform %q", crawler.ErrInvalidTarget, target.Platform))
		return false
	}
	run.platform = w.platform(target.Platform)
	return true
}

func (w *Worker) acquire(ctx context.Context, run *taskRun) bool {
	holder, err := w.deps.IDs.NewID()
	if err != nil {
		run.fail(fmt.Errorf("generate gate holder: %w", err))
		return false
	}
	key := run.platform.GateKey
	ok, err := w.deps.Gate.Acquire(ctx, key, holder, run.platform.GateTimeout)
	if err != nil {
		run.fail(fmt.Errorf("acquire gate: %w", err))
		return false
	}
	if !ok {
		run.result.Contended = true
		metrics.ObserveGateContention(run.target.Platform)
		run.logger.Info("gate held by another task, skipping run", zap.String("gate_key", key))
		run.enter(crawler.StateDone)
		return false
	}
	run.gateKey, run.holder = key, holder
	run.enter(crawler.StateResourceAcquired)
	return true
}

// release frees the gate with a context that outlives a canceled task.
func (w *Worker) release(ctx context.Context, run *taskRun) {
	if run.holder == "" {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.deps.Gate.Release(releaseCtx, run.gateKey, run.holder); err != nil {
		run.logger.Warn("release gate failed", zap.String("gate_key", run.gateKey), zap.Error(err))
	}
	run.holder = ""
}

func (w *Worker) navigate(ctx context.Context, run *taskRun) (crawler.Session, error) {
	url, err := PageURL(run.target.URL, run.platform.OffsetParam, run.req.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrInvalidTarget, err)
	}
	session, err := w.deps.Sources[run.target.Platform].Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return session, nil
}

func (w *Worker) processItems(ctx context.Context, run *taskRun, handles []crawler.ItemHandle) {
	stats := &run.result.Stats
	for i, handle := range handles {
		stats.Candidates++
		out := w.processItem(ctx, run, handle)
		metrics.ObserveItem(run.target.Platform, out.kind.String())
		switch out.kind {
		case outcomeOK:
			stats.Notified++
		case outcomeIgnored:
			stats.Ignored++
		case outcomeDuplicate:
			stats.Duplicates++
		case outcomeUndelivered:
			stats.Undelivered++
		case outcomeSkip:
			stats.Skipped++
			run.logger.Debug("candidate skipped", zap.Int("index", i), zap.String("reason", out.reason), zap.Error(out.err))
		case outcomeAbort:
			stats.Aborted = true
			run.logger.Warn("page re-rendered, aborting remaining candidates",
				zap.Int("index", i),
				zap.Int("remaining", len(handles)-i-1),
				zap.Error(out.err),
			)
			return
		}
	}
}

// summarize persists run statistics and computes the continuation offset.
// Offset 0 starts a new count; later pages add to the chain's running total.
func (w *Worker) summarize(ctx context.Context, run *taskRun, items int) {
	count := run.result.Stats.Notified
	if run.req.Offset > 0 {
		count += run.target.LastCrawlCount
	}
	if err := w.deps.Targets.RecordCrawl(ctx, run.target.ID, w.deps.Clock.Now(), count); err != nil {
		run.logger.Warn("record crawl stats failed", zap.Error(err))
	}
	if items == 0 {
		return
	}
	if next, ok := continuation.New(run.platform.PageSize).Next(run.target, run.req.Offset); ok {
		run.result.NextOffset = &next
	}
}

// ExecuteChain runs req and then each continuation inline until the chain ends.
// It is the synchronous path used for one-off crawls outside the queue.
func (w *Worker) ExecuteChain(ctx context.Context, req crawler.TaskRequest) []crawler.TaskResult {
	var results []crawler.TaskResult
	for {
		result := w.Execute(ctx, req)
		results = append(results, result)
		if result.NextOffset == nil || result.State != crawler.StateDone || ctx.Err() != nil {
			return results
		}
		next, err := w.NextRequest(req, *result.NextOffset)
		if err != nil {
			w.logger.Error("build continuation failed", zap.String("task_id", req.TaskID), zap.Error(err))
			return results
		}
		req = next
	}
}

// continueChain enqueues the next page of a finished task, if any.
func (w *Worker) continueChain(ctx context.Context, req crawler.TaskRequest, result crawler.TaskResult) {
	if result.NextOffset == nil || result.State != crawler.StateDone {
		return
	}
	next, err := w.NextRequest(req, *result.NextOffset)
	if err != nil {
		w.logger.Error("build continuation failed", zap.String("task_id", req.TaskID), zap.Error(err))
		return
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, w.cfg.EnqueueTimeout)
	defer cancel()
	if err := w.deps.Queue.Enqueue(enqueueCtx, next); err != nil {
		w.logger.Warn("enqueue continuation failed",
			zap.String("task_id", req.TaskID),
			zap.Int("next_offset", next.Offset),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveContinuation(req.Platform)
	w.logger.Debug("continuation enqueued",
		zap.String("parent_task_id", req.TaskID),
		zap.String("task_id", next.TaskID),
		zap.Int("offset", next.Offset),
	)
}

// NextRequest derives the continuation of req at offset.
func (w *Worker) NextRequest(req crawler.TaskRequest, offset int) (crawler.TaskRequest, error) {
	id, err := w.deps.IDs.NewID()
	if err != nil {
		return crawler.TaskRequest{}, fmt.Errorf("generate task id: %w", err)
	}
	return crawler.TaskRequest{
		TaskID:      id,
		TargetID:    req.TargetID,
		Platform:    req.Platform,
		Offset:      offset,
		ForceRepeat: req.ForceRepeat,
		Trigger:     crawler.TriggerContinuation,
		Submitted:   w.deps.Clock.Now().Unix(),
	}, nil
}
