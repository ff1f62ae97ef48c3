// Package jobstore provides a SQLite-backed ingestion job history. Every
// queue enqueue, worker pickup, and completion is recorded so operators can
// answer "what happened to this document" after the fact. The registry holds
// only the current status; this store holds the timeline.
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Outcome is the terminal result of an ingestion job.
type Outcome string

const (
	// OutcomeQueued means the job is waiting for a worker.
	OutcomeQueued Outcome = "queued"
	// OutcomeRunning means a worker picked the job up.
	OutcomeRunning Outcome = "running"
	// OutcomeSucceeded means ingestion completed and fragments are indexed.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means ingestion failed; Error holds the detail.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the job was dropped (document deleted, or
	// another worker held the ingestion lease).
	OutcomeSkipped Outcome = "skipped"
)

// Record is one ingestion job's timeline entry.
type Record struct {
	// JobID is the queue job identifier.
	JobID string
	// DocumentID is the document the job ingests.
	DocumentID string
	// Outcome is the job's current or terminal state.
	Outcome Outcome
	// Error is the failure detail, empty unless Outcome is failed.
	Error string
	// EnqueuedAt is when the job entered the queue.
	EnqueuedAt time.Time
	// StartedAt is when a worker picked the job up. Zero while queued.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal outcome. Zero before.
	CompletedAt time.Time
}

// Store is an append-mostly job history backed by a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingest_jobs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id        TEXT    NOT NULL UNIQUE,
    document_id   TEXT    NOT NULL,
    outcome       TEXT    NOT NULL CHECK(outcome IN ('queued','running','succeeded','failed','skipped')),
    error         TEXT    NOT NULL DEFAULT '',
    enqueued_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    started_at    INTEGER NOT NULL DEFAULT 0,
    completed_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ingest_jobs_document
    ON ingest_jobs (document_id, enqueued_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("jobstore: migrate: %w", err)
	}
	return nil
}

// RecordEnqueued inserts a new queued job row.
func (s *Store) RecordEnqueued(ctx context.Context, jobID, documentID string, enqueuedAt time.Time) error {
	const q = `INSERT INTO ingest_jobs (job_id, document_id, outcome, enqueued_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, jobID, documentID, string(OutcomeQueued), enqueuedAt.Unix()); err != nil {
		return fmt.Errorf("jobstore: record enqueued %s: %w", jobID, err)
	}
	return nil
}

// RecordStarted marks a job as picked up by a worker.
func (s *Store) RecordStarted(ctx context.Context, jobID string) error {
	const q = `UPDATE ingest_jobs SET outcome = ?, started_at = ? WHERE job_id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(OutcomeRunning), time.Now().Unix(), jobID); err != nil {
		return fmt.Errorf("jobstore: record started %s: %w", jobID, err)
	}
	return nil
}

// RecordCompleted marks a job's terminal outcome, retaining the failure
// detail for failed jobs.
func (s *Store) RecordCompleted(ctx context.Context, jobID string, outcome Outcome, errMsg string) error {
	const q = `UPDATE ingest_jobs SET outcome = ?, error = ?, completed_at = ? WHERE job_id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(outcome), errMsg, time.Now().Unix(), jobID); err != nil {
		return fmt.Errorf("jobstore: record completed %s: %w", jobID, err)
	}
	return nil
}

// History returns the most recent n job records for a document, newest
// first. If fewer than n exist, all are returned.
func (s *Store) History(ctx context.Context, documentID string, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	const q = `
SELECT job_id, document_id, outcome, error, enqueued_at, started_at, completed_at
FROM ingest_jobs
WHERE document_id = ?
ORDER BY enqueued_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, documentID, n)
	if err != nil {
		return nil, fmt.Errorf("jobstore: history %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var outcome string
		var enqueued, started, completed int64
		if err := rows.Scan(&rec.JobID, &rec.DocumentID, &outcome, &rec.Error, &enqueued, &started, &completed); err != nil {
			return nil, fmt.Errorf("jobstore: scan history row: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		rec.EnqueuedAt = time.Unix(enqueued, 0).UTC()
		if started > 0 {
			rec.StartedAt = time.Unix(started, 0).UTC()
		}
		if completed > 0 {
			rec.CompletedAt = time.Unix(completed, 0).UTC()
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: history %s: %w", documentID, err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
