package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ssd-technologies/nocturne-fleet/internal/storage"
)

// Outcome is the result of executing one recovery Action.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartial
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// AttemptRecord is one executed recovery attempt, in memory or as read back
// from the history table (§4.3 "History").
type AttemptRecord struct {
	ID        string
	Node      string
	Cause     Cause
	Action    Action
	Outcome   Outcome
	Duration  time.Duration
	Detail    string
	StartedAt time.Time
}

// History persists recovery attempts and reads back the trailing window the
// selection table escalates from.
type History struct {
	db *storage.DB
}

// NewHistory wraps a storage.DB for recovery-attempt persistence.
func NewHistory(db *storage.DB) *History {
	return &History{db: db}
}

// Record appends one completed attempt to durable storage.
func (h *History) Record(a AttemptRecord) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := &storage.RecoveryAttemptRow{
		ID:         a.ID,
		Node:       a.Node,
		Cause:      a.Cause.String(),
		Action:     a.Action.String(),
		Outcome:    a.Outcome.String(),
		DurationMs: a.Duration.Milliseconds(),
		Detail:     a.Detail,
		StartedAt:  a.StartedAt.Unix(),
	}
	if err := h.db.InsertRecoveryAttempt(row); err != nil {
		return fmt.Errorf("record recovery attempt: %w", err)
	}
	return nil
}

// Recent returns the last n attempts for node, oldest first, matching the
// order selectAction/escalateFromHistory expect to walk backwards from.
func (h *History) Recent(node string, n int) ([]AttemptRecord, error) {
	rows, err := h.db.LastRecoveryAttempts(node, n)
	if err != nil {
		return nil, fmt.Errorf("recent recovery attempts: %w", err)
	}
	out := make([]AttemptRecord, len(rows))
	for i, r := range rows {
		// LastRecoveryAttempts returns newest first; reverse into
		// chronological order.
		out[len(rows)-1-i] = rowToAttempt(r)
	}
	return out, nil
}

func rowToAttempt(r storage.RecoveryAttemptRow) AttemptRecord {
	return AttemptRecord{
		ID:        r.ID,
		Node:      r.Node,
		Cause:     parseCause(r.Cause),
		Action:    parseAction(r.Action),
		Outcome:   parseOutcome(r.Outcome),
		Duration:  time.Duration(r.DurationMs) * time.Millisecond,
		Detail:    r.Detail,
		StartedAt: time.Unix(r.StartedAt, 0),
	}
}

func parseCause(s string) Cause {
	switch s {
	case "oom":
		return CauseOOM
	case "disk_pressure":
		return CauseDiskPressure
	case "start_failure":
		return CauseStartFailure
	default:
		return CauseUnknown
	}
}

func parseAction(s string) Action {
	switch s {
	case "restart_process":
		return ActionRestartProcess
	case "redeploy_component":
		return ActionRedeployComponent
	case "failover_to_backup":
		return ActionFailoverToBackup
	case "scale_up":
		return ActionScaleUp
	case "rollback_configuration":
		return ActionRollbackConfiguration
	case "emergency_shutdown":
		return ActionEmergencyShutdown
	case "cleanup":
		return actionCleanup
	default:
		return ActionRestartProcess
	}
}

func parseOutcome(s string) Outcome {
	switch s {
	case "success":
		return OutcomeSuccess
	case "partial":
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}
