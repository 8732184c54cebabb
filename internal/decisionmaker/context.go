package decisionmaker

import (
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/health"
)

// Candidate describes a target server eligible for a Deploy decision.
type Candidate struct {
	ID           string
	Priority     int
	FailureCount int
	Running      bool
}

// ReplicaStats summarizes the Self-Replicator's current fleet state.
type ReplicaStats struct {
	Active  int
	Healthy int
	Max     int
	Min     int
}

// TaskStats summarizes the Task Scheduler's queue state.
type TaskStats struct {
	Pending int
	Overdue int
}

// Context is the read-only input to one Evaluate call (§4.1). It carries no
// hidden state; everything Evaluate needs travels in this struct.
type Context struct {
	Health     health.Snapshot
	Replicas   ReplicaStats
	Tasks      TaskStats
	Candidates []Candidate
	Now        time.Time
}
