package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuarantined is returned by Handle once EmergencyShutdown has fired for
// a node; no further automatic recovery runs against it (§4.3 "terminal for
// the loop").
var ErrQuarantined = errors.New("recovery: node is quarantined")

// Executors are the side-effecting operations a recovery Action invokes.
// A nil field is treated as a no-op success, letting callers wire only the
// actions they care to exercise (useful in tests and partial deployments).
type Executors struct {
	Restart  func(ctx context.Context) error
	Redeploy func(ctx context.Context) error
	Failover func(ctx context.Context) error
	ScaleUp  func(ctx context.Context) error
	Rollback func(ctx context.Context) error
	Shutdown func(ctx context.Context) error
	Cleanup  func(ctx context.Context) error
}

// Manager selects and executes recovery actions for one node, recording
// every attempt and escalating per the history-driven table in §4.3.
type Manager struct {
	node          string
	history       *History
	backoff       Backoff
	exec          Executors
	historyWindow int

	mu               sync.Mutex
	quarantined      bool
	consecutiveFails int
}

// NewManager builds a Manager for node, backed by history for persistence
// and exec for the actual side effects.
func NewManager(node string, history *History, exec Executors) *Manager {
	return &Manager{
		node:          node,
		history:       history,
		backoff:       DefaultBackoff(),
		exec:          exec,
		historyWindow: 5,
	}
}

// Quarantined reports whether EmergencyShutdown has already fired for this
// node.
func (m *Manager) Quarantined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quarantined
}

// Handle selects an action for cause, executes it, and persists the
// attempt. It returns ErrQuarantined without touching history if the node
// was already shut down by a prior EmergencyShutdown.
func (m *Manager) Handle(ctx context.Context, cause Cause) (Outcome, Action, error) {
	if m.Quarantined() {
		return OutcomeFailure, ActionEmergencyShutdown, ErrQuarantined
	}

	recent, err := m.history.Recent(m.node, m.historyWindow)
	if err != nil {
		return OutcomeFailure, 0, fmt.Errorf("load recovery history: %w", err)
	}
	action := selectAction(cause, recent)

	start := time.Now()
	execErr := m.execute(ctx, action)
	duration := time.Since(start)

	outcome := OutcomeSuccess
	detail := ""
	if execErr != nil {
		outcome = OutcomeFailure
		detail = execErr.Error()
	}

	record := AttemptRecord{
		Node: m.node, Cause: cause, Action: action, Outcome: outcome,
		Duration: duration, Detail: detail, StartedAt: start,
	}
	if err := m.history.Record(record); err != nil {
		return outcome, action, fmt.Errorf("persist recovery attempt: %w", err)
	}

	m.mu.Lock()
	if outcome == OutcomeSuccess {
		m.consecutiveFails = 0
	} else {
		m.consecutiveFails++
	}
	if action == ActionEmergencyShutdown && outcome == OutcomeSuccess {
		m.quarantined = true
	}
	m.mu.Unlock()

	return outcome, action, execErr
}

// NextRetryDelay returns how long the engine should wait before retrying a
// failed recovery, based on the number of consecutive failures observed so
// far by this Manager.
func (m *Manager) NextRetryDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Delay(m.consecutiveFails)
}

func (m *Manager) execute(ctx context.Context, action Action) error {
	switch action {
	case ActionRestartProcess:
		return call(ctx, m.exec.Restart)
	case ActionRedeployComponent:
		return call(ctx, m.exec.Redeploy)
	case ActionFailoverToBackup:
		return call(ctx, m.exec.Failover)
	case ActionScaleUp:
		return call(ctx, m.exec.ScaleUp)
	case ActionRollbackConfiguration:
		return call(ctx, m.exec.Rollback)
	case ActionEmergencyShutdown:
		return call(ctx, m.exec.Shutdown)
	case actionCleanup:
		if err := call(ctx, m.exec.Cleanup); err != nil {
			return err
		}
		return call(ctx, m.exec.Restart)
	default:
		return fmt.Errorf("recovery: unknown action %s", action)
	}
}

func call(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
