package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_RunsReadyTaskImmediately(t *testing.T) {
	reg := NewRegistry()
	var ran int32
	reg.Register(KindHealthCheck, func(ctx context.Context, task *Task) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	s := New(reg, Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(&Task{ID: "t1", Kind: KindHealthCheck, ScheduledAt: time.Now()})

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&ran) == 1 })
	task, ok := s.Get("t1")
	if !ok || task.State != StateCompleted {
		t.Fatalf("expected t1 Completed, got %+v ok=%v", task, ok)
	}
}

func TestScheduler_StatsCountsPendingAndOverdue(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindHealthCheck, func(ctx context.Context, task *Task) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	s := New(reg, Config{Workers: 1})

	s.Submit(&Task{ID: "future", Kind: KindHealthCheck, ScheduledAt: time.Now().Add(time.Hour)})
	s.Submit(&Task{ID: "overdue", Kind: KindHealthCheck, ScheduledAt: time.Now().Add(-time.Minute)})
	s.Submit(&Task{ID: "blocked", Kind: KindHealthCheck, ScheduledAt: time.Now(), Dependencies: []string{"future"}})

	stats := s.Stats()
	if stats.Pending != 3 {
		t.Fatalf("expected 3 pending tasks, got %d", stats.Pending)
	}
	if stats.Overdue != 1 {
		t.Fatalf("expected 1 overdue task, got %d", stats.Overdue)
	}
}

func TestScheduler_DependencyGating(t *testing.T) {
	reg := NewRegistry()
	var order []string
	var mu sync.Mutex
	reg.Register(KindCleanup, func(ctx context.Context, task *Task) error {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return nil
	})
	s := New(reg, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(&Task{ID: "child", Kind: KindCleanup, ScheduledAt: time.Now(), Dependencies: []string{"parent"}})
	// The child must not be runnable before its parent completes.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	ranBeforeParent := len(order) > 0
	mu.Unlock()
	if ranBeforeParent {
		t.Fatal("child ran before its dependency completed")
	}

	s.Submit(&Task{ID: "parent", Kind: KindCleanup, ScheduledAt: time.Now()})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "parent" || order[1] != "child" {
		t.Fatalf("expected parent then child, got %v", order)
	}
}

func TestScheduler_RetryThenFailurePropagatesToDependents(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindBackup, func(ctx context.Context, task *Task) error {
		return errors.New("boom")
	})
	s := New(reg, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(&Task{ID: "flaky", Kind: KindBackup, ScheduledAt: time.Now(), MaxRetries: 1})
	s.Submit(&Task{ID: "downstream", Kind: KindBackup, ScheduledAt: time.Now(), Dependencies: []string{"flaky"}})

	waitFor(t, 2*time.Second, func() bool {
		task, ok := s.Get("downstream")
		return ok && task.State == StateFailed
	})

	flaky, _ := s.Get("flaky")
	if flaky.State != StateFailed {
		t.Fatalf("expected flaky to end Failed, got %s", flaky.State)
	}
}

func TestScheduler_CancelReadyTaskRemovesIt(t *testing.T) {
	reg := NewRegistry()
	s := New(reg, Config{Workers: 1})
	s.Submit(&Task{ID: "later", Kind: KindHealthCheck, ScheduledAt: time.Now().Add(time.Hour)})

	if err := s.Cancel("later"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	task, ok := s.Get("later")
	if !ok || task.State != StateCancelled {
		t.Fatalf("expected Cancelled, got %+v ok=%v", task, ok)
	}
}

func TestScheduler_CancelRunningTaskDoesNotPropagateFailure(t *testing.T) {
	reg := NewRegistry()
	started := make(chan struct{})
	reg.Register(KindHealthCheck, func(ctx context.Context, task *Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	s := New(reg, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(&Task{ID: "victim", Kind: KindHealthCheck, ScheduledAt: time.Now()})
	s.Submit(&Task{ID: "dependent", Kind: KindHealthCheck, ScheduledAt: time.Now(), Dependencies: []string{"victim"}})

	<-started
	if err := s.Cancel("victim"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		task, ok := s.Get("victim")
		return ok && task.State == StateCancelled
	})

	time.Sleep(100 * time.Millisecond)
	dependent, ok := s.Get("dependent")
	if !ok {
		t.Fatal("expected dependent task to still exist")
	}
	if dependent.State == StateFailed {
		t.Fatal("cancellation must not propagate failure to dependents")
	}
}

func TestScheduler_RecurringTaskReenqueues(t *testing.T) {
	reg := NewRegistry()
	var count int32
	reg.Register(KindHealthCheck, func(ctx context.Context, task *Task) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	s := New(reg, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Submit(&Task{ID: "recurring", Kind: KindHealthCheck, ScheduledAt: time.Now(), RecurEvery: 50 * time.Millisecond})

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&count) >= 2 })
}
