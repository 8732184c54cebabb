package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/storage"
)

// Store persists task records as a durable history: the Scheduler saves
// every state change through it. A new Scheduler does not reload these
// records; it starts with an empty queue.
type Store struct {
	db *storage.DB
}

// NewStore wraps a storage.DB for task persistence.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Save upserts one task's current state.
func (s *Store) Save(t *Task) error {
	row := taskToRow(t)
	if err := s.db.UpsertTaskRecord(row); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// LoadAll returns every persisted task. The Scheduler itself never calls it.
func (s *Store) LoadAll() ([]*Task, error) {
	rows, err := s.db.ListTaskRecords()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	out := make([]*Task, len(rows))
	for i, r := range rows {
		out[i] = rowToTask(r)
	}
	return out, nil
}

// Delete removes a task's persisted record. The Scheduler itself never calls
// it; terminal tasks stay in the store.
func (s *Store) Delete(id string) error {
	if err := s.db.DeleteTaskRecord(id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func taskToRow(t *Task) *storage.TaskRecordRow {
	return &storage.TaskRecordRow{
		ID:           t.ID,
		Kind:         t.Kind.String(),
		CustomName:   t.CustomName,
		Priority:     int(t.Priority),
		State:        t.State.String(),
		ScheduledAt:  t.ScheduledAt.Unix(),
		AttemptCount: t.AttemptCount,
		MaxRetries:   t.MaxRetries,
		TimeoutMs:    t.Timeout.Milliseconds(),
		Dependencies: strings.Join(t.Dependencies, ","),
		LastError:    t.LastError,
		CreatedAt:    t.CreatedAt.Unix(),
		UpdatedAt:    t.UpdatedAt.Unix(),
	}
}

func rowToTask(r storage.TaskRecordRow) *Task {
	var deps []string
	if r.Dependencies != "" {
		deps = strings.Split(r.Dependencies, ",")
	}
	return &Task{
		ID:           r.ID,
		Kind:         parseKind(r.Kind),
		CustomName:   r.CustomName,
		Priority:     uint8(r.Priority),
		ScheduledAt:  time.Unix(r.ScheduledAt, 0),
		Dependencies: deps,
		MaxRetries:   r.MaxRetries,
		Timeout:      time.Duration(r.TimeoutMs) * time.Millisecond,
		State:        parseState(r.State),
		AttemptCount: r.AttemptCount,
		LastError:    r.LastError,
		CreatedAt:    time.Unix(r.CreatedAt, 0),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0),
	}
}

func parseKind(s string) Kind {
	switch s {
	case "health_check":
		return KindHealthCheck
	case "replication_check":
		return KindReplicationCheck
	case "backup":
		return KindBackup
	case "cleanup":
		return KindCleanup
	default:
		return KindCustom
	}
}

func parseState(s string) State {
	switch s {
	case "ready":
		return StateReady
	case "running":
		return StateRunning
	case "completed":
		return StateCompleted
	case "cancelled":
		return StateCancelled
	default:
		return StateFailed
	}
}
