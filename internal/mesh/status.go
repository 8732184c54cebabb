// Package mesh assembles the read-only ClusterStatus snapshot (§6.3) from
// the other components' public accessors and, optionally, pushes it to
// connected dashboards over a websocket.
package mesh

import (
	"sync"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/health"
	"github.com/ssd-technologies/nocturne-fleet/internal/replicator"
)

// AgentSnapshot is one replica's contribution to the cluster view.
type AgentSnapshot struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	DeployedAt     time.Time `json:"deployed_at,omitempty"`
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
}

// Event is one entry in the recent-activity log surfaced alongside the
// snapshot (decisions, recovery actions, deploys — anything a consumer
// polling the status endpoint would want a trailing record of).
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// ClusterStatus is the exact structure §6.3 names: the only structured
// surface an external HTTP/JSON reader consumes. It is a snapshot, not a
// stream — callers poll Build.
type ClusterStatus struct {
	Total         int             `json:"total"`
	Healthy       int             `json:"healthy"`
	Degraded      int             `json:"degraded"`
	Offline       int             `json:"offline"`
	CPUTotal      float64         `json:"cpu_total"`
	MemoryTotal   float64         `json:"memory_total"`
	ClusterHealth string          `json:"cluster_health"`
	Agents        []AgentSnapshot `json:"agents"`
	Events        []Event         `json:"events"`
}

// EventLog is a bounded, most-recent-first ring of Events. It has no
// relationship to health.Store's rolling window beyond sharing the "keep
// the last N" shape.
type EventLog struct {
	mu    sync.Mutex
	items []Event
	cap   int
}

// NewEventLog creates a log retaining at most capacity events (default 100).
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventLog{cap: capacity}
}

// Record appends one event, evicting the oldest if the log is full.
func (l *EventLog) Record(kind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, Event{Timestamp: time.Now(), Kind: kind, Detail: detail})
	if len(l.items) > l.cap {
		l.items = l.items[len(l.items)-l.cap:]
	}
}

// Recent returns a copy of the log, newest first.
func (l *EventLog) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.items))
	for i, e := range l.items {
		out[len(l.items)-1-i] = e
	}
	return out
}

// Build assembles a ClusterStatus from the local node's health snapshot and
// the replicator's per-server records. localID names this node's own entry
// in the agents list, classified by the same Classify buckets health uses.
func Build(localID string, local health.Snapshot, records []replicator.Record, events *EventLog) ClusterStatus {
	status := ClusterStatus{
		CPUTotal:    local.CPUPercent,
		MemoryTotal: local.MemoryPercent,
	}

	status.Agents = append(status.Agents, AgentSnapshot{
		ID:             localID,
		State:          local.Status.String(),
		LastVerifiedAt: local.SampledAt,
	})
	tallyLocal(&status, local.Status)

	for _, r := range records {
		status.Agents = append(status.Agents, AgentSnapshot{
			ID:             r.ServerID,
			State:          r.State.String(),
			DeployedAt:     r.DeployedAt,
			LastVerifiedAt: r.LastVerifiedAt,
			AttemptCount:   r.AttemptCount,
			LastError:      r.LastError,
		})
		tallyReplica(&status, r.State)
	}

	status.Total = len(status.Agents)
	status.ClusterHealth = classifyCluster(status)
	if events != nil {
		status.Events = events.Recent()
	}
	return status
}

func tallyLocal(status *ClusterStatus, s health.Status) {
	switch {
	case s == health.Healthy:
		status.Healthy++
	case s.Worse(health.Healthy) && !s.Worse(health.Unhealthy):
		status.Degraded++
	default:
		status.Degraded++
	}
}

func tallyReplica(status *ClusterStatus, s replicator.State) {
	switch s {
	case replicator.StateRunning:
		status.Healthy++
	case replicator.StateFailed, replicator.StateRetiring:
		status.Offline++
	default:
		status.Degraded++
	}
}

// classifyCluster derives an overall bucket from the per-agent tally: any
// offline agent makes the cluster degraded at best, and a majority offline
// makes it critical. This mirrors health.Classify's "worst input wins"
// posture rather than averaging.
func classifyCluster(status ClusterStatus) string {
	if status.Total == 0 {
		return health.Healthy.String()
	}
	if status.Offline*2 > status.Total {
		return health.Critical.String()
	}
	if status.Offline > 0 || status.Degraded > 0 {
		return health.Degraded.String()
	}
	return health.Healthy.String()
}
