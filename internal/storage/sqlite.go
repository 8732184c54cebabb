// Package storage persists the engine's durable history: recovery attempts
// and task records. Both survive a process restart because the entity being
// monitored (the engine's own process) may itself be the thing that just got
// restarted by a RestartProcess recovery action.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to a SQLite database.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS recovery_attempts (
    id TEXT PRIMARY KEY,
    node TEXT NOT NULL,
    cause TEXT NOT NULL,
    action TEXT NOT NULL,
    outcome TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    detail TEXT,
    started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS task_records (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    custom_name TEXT,
    priority INTEGER NOT NULL,
    state TEXT NOT NULL,
    scheduled_at INTEGER NOT NULL,
    attempt_count INTEGER DEFAULT 0,
    max_retries INTEGER DEFAULT 0,
    timeout_ms INTEGER NOT NULL,
    dependencies TEXT,
    last_error TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recovery_node ON recovery_attempts(node);
CREATE INDEX IF NOT EXISTS idx_recovery_started ON recovery_attempts(started_at);
CREATE INDEX IF NOT EXISTS idx_task_state ON task_records(state);
CREATE INDEX IF NOT EXISTS idx_task_scheduled ON task_records(scheduled_at);`
	_, err := d.db.Exec(schema)
	return err
}

// --- Recovery attempt CRUD ---

// RecoveryAttemptRow is the persisted shape of one recovery attempt.
type RecoveryAttemptRow struct {
	ID         string
	Node       string
	Cause      string
	Action     string
	Outcome    string
	DurationMs int64
	Detail     string
	StartedAt  int64
}

// InsertRecoveryAttempt appends a recovery attempt record.
func (d *DB) InsertRecoveryAttempt(r *RecoveryAttemptRow) error {
	_, err := d.db.Exec(
		`INSERT INTO recovery_attempts (id, node, cause, action, outcome, duration_ms, detail, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Node, r.Cause, r.Action, r.Outcome, r.DurationMs, r.Detail, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recovery attempt: %w", err)
	}
	return nil
}

// LastRecoveryAttempts returns the most recent n attempts for a node, newest first.
func (d *DB) LastRecoveryAttempts(node string, n int) ([]RecoveryAttemptRow, error) {
	rows, err := d.db.Query(
		`SELECT id, node, cause, action, outcome, duration_ms, detail, started_at
		 FROM recovery_attempts WHERE node = ? ORDER BY started_at DESC LIMIT ?`,
		node, n,
	)
	if err != nil {
		return nil, fmt.Errorf("list recovery attempts: %w", err)
	}
	defer rows.Close()

	var out []RecoveryAttemptRow
	for rows.Next() {
		var r RecoveryAttemptRow
		if err := rows.Scan(&r.ID, &r.Node, &r.Cause, &r.Action, &r.Outcome, &r.DurationMs, &r.Detail, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan recovery attempt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Task record CRUD ---

// TaskRecordRow is the persisted shape of one scheduled task.
type TaskRecordRow struct {
	ID           string
	Kind         string
	CustomName   string
	Priority     int
	State        string
	ScheduledAt  int64
	AttemptCount int
	MaxRetries   int
	TimeoutMs    int64
	Dependencies string // comma-joined task IDs
	LastError    string
	CreatedAt    int64
	UpdatedAt    int64
}

// UpsertTaskRecord inserts or replaces a task record by ID.
func (d *DB) UpsertTaskRecord(t *TaskRecordRow) error {
	_, err := d.db.Exec(
		`INSERT INTO task_records
		   (id, kind, custom_name, priority, state, scheduled_at, attempt_count, max_retries, timeout_ms, dependencies, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind=excluded.kind, custom_name=excluded.custom_name, priority=excluded.priority,
		   state=excluded.state, scheduled_at=excluded.scheduled_at, attempt_count=excluded.attempt_count,
		   max_retries=excluded.max_retries, timeout_ms=excluded.timeout_ms, dependencies=excluded.dependencies,
		   last_error=excluded.last_error, updated_at=excluded.updated_at`,
		t.ID, t.Kind, t.CustomName, t.Priority, t.State, t.ScheduledAt, t.AttemptCount, t.MaxRetries,
		t.TimeoutMs, t.Dependencies, t.LastError, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task record: %w", err)
	}
	return nil
}

// ListTaskRecords returns all persisted task records.
func (d *DB) ListTaskRecords() ([]TaskRecordRow, error) {
	rows, err := d.db.Query(
		`SELECT id, kind, custom_name, priority, state, scheduled_at, attempt_count, max_retries, timeout_ms, dependencies, last_error, created_at, updated_at
		 FROM task_records`,
	)
	if err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
	}
	defer rows.Close()

	var out []TaskRecordRow
	for rows.Next() {
		var t TaskRecordRow
		if err := rows.Scan(&t.ID, &t.Kind, &t.CustomName, &t.Priority, &t.State, &t.ScheduledAt,
			&t.AttemptCount, &t.MaxRetries, &t.TimeoutMs, &t.Dependencies, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTaskRecord removes a task record by ID.
func (d *DB) DeleteTaskRecord(id string) error {
	_, err := d.db.Exec(`DELETE FROM task_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task record: %w", err)
	}
	return nil
}
