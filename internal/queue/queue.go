// Package queue provides the ingestion job queue decoupling upload from
// processing. The Redis implementation is the production backend; the
// in-memory implementation serves tests and single-process deployments.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by queue operations after Close.
var ErrClosed = errors.New("queue closed")

// Job is one ingestion unit of work referencing a registered document.
type Job struct {
	// ID uniquely identifies this enqueue event.
	ID string `json:"id"`
	// DocumentID is the document to ingest.
	DocumentID string `json:"document_id"`
	// EnqueuedAt is when the job was submitted.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ReleaseFunc releases a held ingestion lease. Safe to call once.
type ReleaseFunc func()

// Queue is the ingestion job queue contract. Implementations must be safe
// for concurrent use.
type Queue interface {
	// Enqueue submits a document for ingestion and returns the created job.
	Enqueue(ctx context.Context, documentID string) (*Job, error)

	// Dequeue blocks until a job is available or the context is done.
	Dequeue(ctx context.Context) (*Job, error)

	// AcquireLease takes a per-document ingestion lease so only one worker
	// processes a document at a time. When acquired is false, another
	// holder owns the lease and the caller must skip the job.
	AcquireLease(ctx context.Context, documentID string, ttl time.Duration) (release ReleaseFunc, acquired bool, err error)

	// Ping verifies the queue backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}
