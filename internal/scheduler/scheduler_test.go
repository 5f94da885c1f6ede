package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestAdd_InvalidSpec verifies malformed schedules are rejected.
func TestAdd_InvalidSpec(t *testing.T) {
	s := New(time.UTC, nil)
	if err := s.Add("poll", "not a cron spec", 0, func(ctx context.Context) {}); err == nil {
		t.Error("Add() error = nil, want error for invalid spec")
	}
	if err := s.Add("poll", "*/5 * * * *", 0, func(ctx context.Context) {}); err != nil {
		t.Errorf("Add() error = %v", err)
	}
	if err := s.Add("aggregate", "59 23 * * *", 0, func(ctx context.Context) {}); err != nil {
		t.Errorf("Add() error = %v", err)
	}
}

// TestSupervisor_RunsJob verifies a started supervisor fires the job.
func TestSupervisor_RunsJob(t *testing.T) {
	s := New(time.UTC, nil)
	var runs atomic.Int32
	if err := s.Add("tick", "@every 1s", time.Second, func(ctx context.Context) {
		runs.Add(1)
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Start()
	s.Start()

	waitFor(t, 3*time.Second, func() bool { return runs.Load() >= 1 })

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// TestSupervisor_RecoversPanic verifies a panicking job is logged and the next tick still runs.
func TestSupervisor_RecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(time.UTC, zap.New(core))
	var runs atomic.Int32
	_ = s.Add("flaky", "@every 1s", 0, func(ctx context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})
	s.Start()
	defer s.Stop(context.Background())

	waitFor(t, 4*time.Second, func() bool { return runs.Load() >= 2 })

	if logs.FilterMessage("panic").Len() == 0 {
		t.Error("expected recovered panic to be logged")
	}
}

// TestSupervisor_StopWaitsForRunningJob verifies Stop blocks until the job returns.
func TestSupervisor_StopWaitsForRunningJob(t *testing.T) {
	s := New(time.UTC, nil)
	started := make(chan struct{})
	var finished atomic.Bool
	_ = s.Add("slow", "@every 1s", 0, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
	})
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Stop() returned before running job finished")
	}
}

// TestSupervisor_StopDeadlineCancelsJob verifies an expired Stop context cancels job contexts.
func TestSupervisor_StopDeadlineCancelsJob(t *testing.T) {
	s := New(time.UTC, nil)
	started := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	_ = s.Add("stuck", "@every 1s", 0, func(ctx context.Context) {
		started <- struct{}{}
		<-ctx.Done()
		close(cancelled)
	})
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want DeadlineExceeded", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("job context was not cancelled")
	}
}

// TestSupervisor_JobTimeout verifies the per-job deadline is applied.
func TestSupervisor_JobTimeout(t *testing.T) {
	s := New(time.UTC, nil)
	errCh := make(chan error, 1)
	_ = s.Add("bounded", "@every 1s", 50*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done()
		select {
		case errCh <- ctx.Err():
		default:
		}
	})
	s.Start()
	defer s.Stop(context.Background())

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("job ctx error = %v, want DeadlineExceeded", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not time out")
	}
}

// TestStop_Idempotent verifies Stop before Start and repeated Stop are safe.
func TestStop_Idempotent(t *testing.T) {
	s := New(nil, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("first Stop() error = %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	s.Start()
}
