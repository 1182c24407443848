package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/metrics"
)

// Trigger dispatches crawl tasks on operator request.
type Trigger interface {
	TriggerNow(ctx context.Context, targetID string, ignoreRepetitive bool) (crawler.TaskRequest, error)
	Tick(ctx context.Context, platform string) (int, error)
}

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options tune the HTTP surface.
type Options struct {
	// APIKey guards /v1 routes when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	Readiness      map[string]ReadinessCheck
}

// Server wires HTTP handlers to the target store and scheduler.
type Server struct {
	router  chi.Router
	targets crawler.TargetStore
	trigger Trigger
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(targets crawler.TargetStore, trigger Trigger, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		targets: targets,
		trigger: trigger,
		opts:    opts,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.listTargets)
			r.Route("/{target_id}", func(r chi.Router) {
				r.Get("/", s.getTarget)
				r.Post("/crawl", s.crawlTarget)
			})
		})
		r.Post("/platforms/{platform}/tick", s.tickPlatform)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.opts.Readiness {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.targets.ListTargets(r.Context())
	if err != nil {
		s.logger.Error("list targets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	if targets == nil {
		targets = []crawler.CrawlTarget{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "target_id")
	target, err := s.targets.GetTarget(r.Context(), id)
	if err != nil || target.DeletedAt != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target})
}

func (s *Server) crawlTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "target_id")
	ignoreRepetitive := true
	if raw := r.URL.Query().Get("ignore_repetitive"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ignore_repetitive must be a boolean")
			return
		}
		ignoreRepetitive = parsed
	}
	task, err := s.trigger.TriggerNow(r.Context(), id, ignoreRepetitive)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":      task.TaskID,
		"target_id":    task.TargetID,
		"force_repeat": task.ForceRepeat,
	})
}

func (s *Server) tickPlatform(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	n, err := s.trigger.Tick(r.Context(), platform)
	if err != nil {
		s.logger.Warn("manual tick failed", zap.String("platform", platform), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "enqueued": n})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"platform": platform, "enqueued": n})
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case err == nil, errors.Is(err, crawler.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("target request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
