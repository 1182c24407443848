package memory

import (
	"context"
	"errors"
	"testing"
)

func TestNotifierStoresDeliveries(t *testing.T) {
	t.Parallel()

	n := New()
	if err := n.Send(context.Background(), "Go Engineer at Acme", "@gojobs"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := n.Send(context.Background(), "Rust Engineer", "@rustjobs"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := n.Deliveries()
	if len(got) != 2 || got[0].Destination != "@gojobs" || got[1].Message != "Rust Engineer" {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	got[0].Message = "mutated"
	if n.Deliveries()[0].Message != "Go Engineer at Acme" {
		t.Fatal("expected Deliveries to return a copy")
	}
}

func TestNotifierFailWith(t *testing.T) {
	t.Parallel()

	n := New()
	boom := errors.New("boom")
	n.FailWith(boom)
	if err := n.Send(context.Background(), "m", "d"); !errors.Is(err, boom) {
		t.Fatalf("expected configured error, got %v", err)
	}
	n.FailWith(nil)
	if err := n.Send(context.Background(), "m", "d"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(n.Deliveries()) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(n.Deliveries()))
	}
}
