// Package server assembles the harvester from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/api"
	"github.com/JakeFAU/social-harvester/internal/config"
	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/dispatcher"
	"github.com/JakeFAU/social-harvester/internal/scheduler"
	"github.com/JakeFAU/social-harvester/internal/worker"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	targets   crawler.TargetStore
	queue     crawler.Queue
	workers   []*worker.Worker
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	readiness map[string]api.ReadinessCheck
	closers   []closer
	ids       crawler.IDGenerator
}

// Scheduler exposes the trigger surface, for commands that enqueue without serving.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Targets returns the configured target store.
func (a *App) Targets() crawler.TargetStore {
	return a.targets
}

// Handler returns the admin API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler, workers and admin API and blocks until ctx is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{}, 2)
	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", len(a.workers)))
		a.dispatch.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		a.logger.Info("scheduler started", zap.Strings("platforms", a.scheduler.Platforms()))
		a.scheduler.Run(ctx)
		done <- struct{}{}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	for range 2 {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			a.logger.Warn("background loops did not stop before shutdown deadline")
		}
	}
	return a.Close(shutdownCtx)
}

// CrawlNow runs one target's full pagination chain inline on the first worker.
// ignoreRepetitive=false re-processes identifiers already in the dedup cache.
func (a *App) CrawlNow(ctx context.Context, targetID string, ignoreRepetitive bool) ([]crawler.TaskResult, error) {
	if len(a.workers) == 0 {
		return nil, errors.New("no workers configured")
	}
	target, err := a.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load target %s: %w", targetID, err)
	}
	taskID, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	req := crawler.TaskRequest{
		TaskID:      taskID,
		TargetID:    target.ID,
		Platform:    target.Platform,
		ForceRepeat: !ignoreRepetitive,
		Trigger:     crawler.TriggerManual,
		Submitted:   time.Now().Unix(),
	}
	return a.workers[0].ExecuteChain(ctx, req), nil
}

// Close releases every client the app opened, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
