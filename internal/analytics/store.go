// Package analytics is a cross-run, cross-feature SQLite-backed history
// of level, task, and merge outcomes. It is strictly additive and
// read-mostly: the per-feature JSON state (internal/state) remains the
// sole source of truth for orchestration; this store exists only to
// answer "how has this feature been doing" queries across runs.
package analytics

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the analytics SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates (or opens) the analytics database at dbPath, creating its
// parent directory and initializing the schema if needed.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create analytics directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init analytics schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LevelRun is one level's outcome snapshot, recorded when the level
// resolves (spec.md §4.10 step 6).
type LevelRun struct {
	Feature        string
	Level          int
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	StartedAt      time.Time
	CompletedAt    time.Time
}

// RecordLevelRun writes a level's outcome. Best-effort: a write failure
// is returned to the caller to log, never treated as fatal to
// orchestration (spec.md §6).
func (s *Store) RecordLevelRun(r LevelRun) error {
	durationMs := r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	_, err := s.db.Exec(
		`INSERT INTO level_runs (feature, level, total_tasks, completed_tasks, failed_tasks, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Feature, r.Level, r.TotalTasks, r.CompletedTasks, r.FailedTasks, r.StartedAt, r.CompletedAt, durationMs,
	)
	return err
}

// TaskRun is one task's terminal-status snapshot.
type TaskRun struct {
	Feature    string
	TaskID     string
	Level      int
	WorkerID   *int
	Status     string
	RetryCount int
	Error      *string
	RecordedAt time.Time
}

// RecordTaskRun writes a task's outcome.
func (s *Store) RecordTaskRun(r TaskRun) error {
	_, err := s.db.Exec(
		`INSERT INTO task_runs (feature, task_id, level, worker_id, status, retry_count, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Feature, r.TaskID, r.Level, r.WorkerID, r.Status, r.RetryCount, r.Error, r.RecordedAt,
	)
	return err
}

// MergeRun is one level merge attempt's outcome.
type MergeRun struct {
	Feature        string
	Level          int
	Target         string
	Success        bool
	MergeCommit    *string
	Error          *string
	SourceBranches []string
	RecordedAt     time.Time
}

// RecordMergeRun writes a merge attempt's outcome, recorded at the
// merge-complete boundary (spec.md §4.7, §6).
func (s *Store) RecordMergeRun(r MergeRun) error {
	_, err := s.db.Exec(
		`INSERT INTO merge_runs (feature, level, target, success, merge_commit, error, source_branches, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Feature, r.Level, r.Target, r.Success, r.MergeCommit, r.Error, strings.Join(r.SourceBranches, ","), r.RecordedAt,
	)
	return err
}

// LevelHistory returns every recorded run for one feature's level across
// the database's lifetime, most recent first.
func (s *Store) LevelHistory(feature string, level int) ([]LevelRun, error) {
	rows, err := s.db.Query(
		`SELECT feature, level, total_tasks, completed_tasks, failed_tasks, started_at, completed_at
		 FROM level_runs WHERE feature = ? AND level = ? ORDER BY id DESC`,
		feature, level,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LevelRun
	for rows.Next() {
		var r LevelRun
		if err := rows.Scan(&r.Feature, &r.Level, &r.TotalTasks, &r.CompletedTasks, &r.FailedTasks, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
