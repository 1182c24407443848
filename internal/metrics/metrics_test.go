package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if tasksTotal == nil || itemsTotal == nil || gateContentionTotal == nil ||
		notificationsTotal == nil || continuationsTotal == nil || activeTasks == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	ObserveTask("linkedin", "done")
	if val := testutil.ToFloat64(tasksTotal.WithLabelValues("linkedin", "done")); val < 1 {
		t.Errorf("Expected harvester_tasks_total to be at least 1, got %f", val)
	}

	before := testutil.ToFloat64(itemsTotal.WithLabelValues("unknown", "ignored"))
	ObserveItem("", "ignored")
	if val := testutil.ToFloat64(itemsTotal.WithLabelValues("unknown", "ignored")); val != before+1 {
		t.Errorf("Expected empty platform to map to unknown, got %f", val)
	}

	ObserveGateContention("twitter")
	ObserveContinuation("twitter")
	ObserveNotification("error")
	if val := testutil.ToFloat64(gateContentionTotal.WithLabelValues("twitter")); val < 1 {
		t.Errorf("Expected gate contention to be recorded, got %f", val)
	}
	if val := testutil.ToFloat64(notificationsTotal.WithLabelValues("error")); val < 1 {
		t.Errorf("Expected notification error to be recorded, got %f", val)
	}

	start := testutil.ToFloat64(activeTasks)
	IncActiveTasks()
	IncActiveTasks()
	DecActiveTasks()
	if val := testutil.ToFloat64(activeTasks); val != start+1 {
		t.Errorf("Expected active tasks %f, got %f", start+1, val)
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	ObserveRateLimitDelay("www.linkedin.com", 0)
	if n := testutil.CollectAndCount(rateLimitDelaySeconds, "harvester_rate_limit_delay_seconds"); n < 1 {
		t.Errorf("Expected a rate limit delay series, got %d", n)
	}
}
