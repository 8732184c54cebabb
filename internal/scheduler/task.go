// Package scheduler implements the Task Scheduler (§4.5): a dependency-
// gated priority queue, a bounded worker pool, and retry/recurrence
// handling for scheduled units of work.
package scheduler

import "time"

// Kind is the Task tagged variant (§3). Custom tasks carry a name looked up
// in the handler registry at dispatch time.
type Kind int

const (
	KindHealthCheck Kind = iota
	KindReplicationCheck
	KindBackup
	KindCleanup
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindHealthCheck:
		return "health_check"
	case KindReplicationCheck:
		return "replication_check"
	case KindBackup:
		return "backup"
	case KindCleanup:
		return "cleanup"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// State is the Task lifecycle (§3). A task that is blocked on unmet
// dependencies has none of the exported State values: the Scheduler tags it
// with the unexported stateBlocked while it sits in its internal pending set.
type State int

const (
	StateReady State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is a unit of scheduled work (§3).
type Task struct {
	ID           string
	Kind         Kind
	CustomName   string
	Priority     uint8
	ScheduledAt  time.Time
	Dependencies []string
	MaxRetries   int
	Timeout      time.Duration
	State        State
	AttemptCount int
	LastError    string

	// RecurEvery, when nonzero, causes the task to re-enqueue itself with
	// ScheduledAt advanced by this period on successful completion (§4.5
	// "Recurring tasks").
	RecurEvery time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time

	// cancelRequested is set by Cancel when a Running task is signalled; it
	// tells execute to record Cancelled instead of whatever the handler
	// itself returned.
	cancelRequested bool
}

// clone returns a value copy safe to hand to callers outside the lock.
func (t *Task) clone() Task {
	depsCopy := append([]string(nil), t.Dependencies...)
	c := *t
	c.Dependencies = depsCopy
	return c
}
