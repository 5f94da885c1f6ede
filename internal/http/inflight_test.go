package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInFlightTracker_BeginEnd(t *testing.T) {
	var tr InFlightTracker
	endA := tr.Begin()
	endB := tr.Begin()
	if got := tr.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	endA()
	endA()
	if got := tr.Count(); got != 1 {
		t.Errorf("Count() after double end = %d, want 1", got)
	}
	endB()
	if got := tr.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_DrainWaitsForEnd(t *testing.T) {
	var tr InFlightTracker
	end := tr.Begin()
	go func() {
		time.Sleep(50 * time.Millisecond)
		end()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if tr.Count() != 0 {
		t.Errorf("Count() = %d after Drain", tr.Count())
	}
}

func TestInFlightTracker_DrainDeadline(t *testing.T) {
	var tr InFlightTracker
	defer tr.Begin()()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := tr.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want deadline exceeded", err)
	}
}

func TestInFlightTracker_DrainIdleReturnsImmediately(t *testing.T) {
	var tr InFlightTracker
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Drain(ctx); err != nil {
		t.Errorf("Drain() on idle tracker error = %v, want nil", err)
	}
}
