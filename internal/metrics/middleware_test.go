package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/targets/{target_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/v1/targets/a", "/v1/targets/b", "/healthz", "/nope"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/targets/{target_id}", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")), 0,
		"health endpoints are not instrumented")
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestObserveEnqueue(t *testing.T) {
	Init()
	before := testutil.ToFloat64(tasksEnqueuedTotal.WithLabelValues("linkedin", "manual"))
	ObserveEnqueue("linkedin", "manual")
	require.InDelta(t, before+1, testutil.ToFloat64(tasksEnqueuedTotal.WithLabelValues("linkedin", "manual")), 0)
}
