package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"
)

// stateBlocked is an internal-only value distinct from the five public
// State variants (§3): a task sitting in Scheduler.pending has no Ready/
// Running/Completed/Failed/Cancelled meaning yet, it simply hasn't had its
// dependencies satisfied.
const stateBlocked State = 100

// retryBase and retryCeiling bound the backoff applied on handler failure
// (§4.5 "Retry policy": base · 2^attempt, capped).
const (
	retryBase    = 2 * time.Second
	retryCeiling = 5 * time.Minute
)

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := retryBase
	for i := 0; i < attempt; i++ {
		if d >= retryCeiling {
			return retryCeiling
		}
		d *= 2
	}
	if d > retryCeiling {
		d = retryCeiling
	}
	return d
}

// Scheduler is the Task Scheduler (§4.5): dependency-gated ready queue plus
// a bounded worker pool. Scheduler is the single writer of Task state (§3
// "Exactly one writer per entity").
type Scheduler struct {
	mu         sync.Mutex
	all        map[string]*Task
	ready      readyQueue
	pending    map[string]*Task
	dependents map[string][]string // depID -> ids blocked on it
	running    map[string]context.CancelFunc

	handlers *Registry
	store    *Store
	sem      chan struct{}
	wake     chan struct{}
	logger   *log.Logger
}

// Config configures a Scheduler's worker pool.
type Config struct {
	Workers int
	Store   *Store
	Logger  *log.Logger
}

// New builds a Scheduler with the given handler registry and config.
func New(handlers *Registry, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Scheduler{
		all:        make(map[string]*Task),
		pending:    make(map[string]*Task),
		dependents: make(map[string][]string),
		running:    make(map[string]context.CancelFunc),
		handlers:   handlers,
		store:      cfg.Store,
		sem:        make(chan struct{}, cfg.Workers),
		wake:       make(chan struct{}, 1),
		logger:     cfg.Logger,
	}
}

// Submit adds a new task, placing it directly on the ready queue if its
// dependencies are already satisfied or holding it out of the ready set
// otherwise (§3 Task invariant).
func (s *Scheduler) Submit(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.mu.Lock()
	ready := s.depsSatisfiedLocked(t)
	if ready {
		t.State = StateReady
		s.ready.push(t)
	} else {
		t.State = stateBlocked
		s.pending[t.ID] = t
		for _, d := range t.Dependencies {
			if dep, ok := s.all[d]; !ok || dep.State != StateCompleted {
				s.dependents[d] = append(s.dependents[d], t.ID)
			}
		}
	}
	s.all[t.ID] = t
	s.mu.Unlock()

	s.persist(t)
	if ready {
		s.signalWake()
	}
	return nil
}

func (s *Scheduler) depsSatisfiedLocked(t *Task) bool {
	for _, d := range t.Dependencies {
		dep, ok := s.all[d]
		if !ok || dep.State != StateCompleted {
			return false
		}
	}
	return true
}

// Stats summarizes the queue for the Decision Maker's Context (§4.1): Pending
// counts every task not yet Completed/Failed/Cancelled (Ready, blocked, or
// Running), Overdue counts Ready tasks whose ScheduledAt has passed.
func (s *Scheduler) Stats() decisionmaker.TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats decisionmaker.TaskStats
	now := time.Now()
	for _, t := range s.all {
		switch t.State {
		case StateCompleted, StateFailed, StateCancelled:
			continue
		}
		stats.Pending++
		if t.State == StateReady && t.ScheduledAt.Before(now) {
			stats.Overdue++
		}
	}
	return stats
}

// Get returns a snapshot copy of one task's current state.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.all[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Cancel cancels a task (§4.5 "Cancellation"): a Ready or blocked task is
// removed outright; a Running task is signalled and must surrender within
// its own timeout. Cancelling never propagates failure to dependents.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		delete(s.pending, id)
		t.State = StateCancelled
		t.UpdatedAt = time.Now()
		s.mu.Unlock()
		s.persist(t)
		return nil
	}
	for i, t := range s.ready {
		if t.ID == id {
			heap.Remove(&s.ready, i)
			t.State = StateCancelled
			t.UpdatedAt = time.Now()
			s.mu.Unlock()
			s.persist(t)
			return nil
		}
	}
	if cancel, ok := s.running[id]; ok {
		if t, ok2 := s.all[id]; ok2 {
			t.cancelRequested = true
		}
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.mu.Unlock()
	return fmt.Errorf("scheduler: task %s not found or already terminal", id)
}

// Run drives the dispatch loop until ctx is cancelled: it pops due Ready
// tasks up to the worker pool's capacity and dispatches each to its
// handler.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.dispatchDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	for {
		select {
		case s.sem <- struct{}{}:
		default:
			return
		}
		s.mu.Lock()
		t, ok := s.ready.peekDue(time.Now())
		if !ok {
			s.mu.Unlock()
			<-s.sem
			return
		}
		s.ready.pop()
		t.State = StateRunning
		t.UpdatedAt = time.Now()
		runCtx, cancel := context.WithCancel(ctx)
		s.running[t.ID] = cancel
		s.mu.Unlock()

		s.persist(t)
		go s.execute(runCtx, t)
	}
}

func (s *Scheduler) execute(ctx context.Context, t *Task) {
	defer func() {
		s.mu.Lock()
		delete(s.running, t.ID)
		s.mu.Unlock()
		<-s.sem
		s.signalWake()
	}()

	handler, err := s.handlers.Lookup(t)
	if err != nil {
		s.finishFailure(t, err.Error())
		return
	}

	runCtx := ctx
	if t.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(ctx, t.Timeout)
		defer cancelTimeout()
	}

	handlerErr := handler(runCtx, t)

	s.mu.Lock()
	cancelled := t.cancelRequested
	s.mu.Unlock()

	switch {
	case cancelled:
		s.finishCancelled(t)
	case handlerErr == nil:
		s.finishSuccess(t)
	default:
		s.finishFailure(t, handlerErr.Error())
	}
}

func (s *Scheduler) finishSuccess(t *Task) {
	s.mu.Lock()
	t.State = StateCompleted
	t.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.persist(t)
	s.promoteDependents(t.ID)

	if t.RecurEvery > 0 {
		next := &Task{
			Kind: t.Kind, CustomName: t.CustomName, Priority: t.Priority,
			ScheduledAt: t.ScheduledAt.Add(t.RecurEvery), MaxRetries: t.MaxRetries,
			Timeout: t.Timeout, RecurEvery: t.RecurEvery,
		}
		if err := s.Submit(next); err != nil {
			s.logf("failed to re-enqueue recurring task %s: %v", t.ID, err)
		}
	}
}

func (s *Scheduler) finishFailure(t *Task, errMsg string) {
	s.mu.Lock()
	t.AttemptCount++
	t.LastError = errMsg
	retry := t.AttemptCount < t.MaxRetries
	if retry {
		t.ScheduledAt = time.Now().Add(retryDelay(t.AttemptCount))
		t.State = StateReady
		s.ready.push(t)
	} else {
		t.State = StateFailed
	}
	t.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.persist(t)
	if retry {
		s.signalWake()
		return
	}
	s.propagateFailure(t.ID)
}

func (s *Scheduler) finishCancelled(t *Task) {
	s.mu.Lock()
	t.State = StateCancelled
	t.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.persist(t)
}

// promoteDependents moves every task blocked solely on id into the ready
// queue now that id has completed.
func (s *Scheduler) promoteDependents(id string) {
	s.mu.Lock()
	waiters := s.dependents[id]
	delete(s.dependents, id)
	var toPush []*Task
	for _, wid := range waiters {
		t, ok := s.pending[wid]
		if !ok || !s.depsSatisfiedLocked(t) {
			continue
		}
		delete(s.pending, wid)
		t.State = StateReady
		toPush = append(toPush, t)
	}
	for _, t := range toPush {
		s.ready.push(t)
	}
	s.mu.Unlock()

	for _, t := range toPush {
		s.persist(t)
	}
	if len(toPush) > 0 {
		s.signalWake()
	}
}

// propagateFailure transitions every task (transitively) blocked on id to
// Failed, per §4.5's mandatory dependency-failure propagation.
func (s *Scheduler) propagateFailure(id string) {
	s.mu.Lock()
	waiters := s.dependents[id]
	delete(s.dependents, id)
	var cascaded []*Task
	for _, wid := range waiters {
		t, ok := s.pending[wid]
		if !ok {
			continue
		}
		delete(s.pending, wid)
		t.State = StateFailed
		t.LastError = fmt.Sprintf("dependency %s failed", id)
		t.UpdatedAt = time.Now()
		cascaded = append(cascaded, t)
	}
	s.mu.Unlock()

	for _, t := range cascaded {
		s.persist(t)
	}
	for _, t := range cascaded {
		s.propagateFailure(t.ID)
	}
}

func (s *Scheduler) persist(t *Task) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(t); err != nil {
		s.logf("persist task %s: %v", t.ID, err)
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
