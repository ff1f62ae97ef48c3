package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemQueue is an in-process Queue for tests and single-binary deployments.
type MemQueue struct {
	jobs chan *Job

	mu     sync.Mutex
	leases map[string]memLease
	closed bool
}

// memLease pairs the expiry with a per-acquisition token so a stale holder's
// release cannot clear a successor's live lease.
type memLease struct {
	token  string
	expiry time.Time
}

// NewMemQueue returns a MemQueue with the given buffer capacity.
func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemQueue{
		jobs:   make(chan *Job, capacity),
		leases: make(map[string]memLease),
	}
}

// Enqueue submits a job. It fails with ErrClosed after Close and blocks
// when the buffer is full.
func (q *MemQueue) Enqueue(ctx context.Context, documentID string) (*Job, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	job := &Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		EnqueuedAt: time.Now().UTC(),
	}
	select {
	case q.jobs <- job:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dequeue blocks until a job is available, the queue closes, or ctx is done.
func (q *MemQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireLease takes an in-process lease with an expiry matching the Redis
// SET NX EX semantics. Release is compare-and-delete on the acquisition
// token, so a holder whose TTL already ran out cannot clear the lease a
// later acquirer now holds.
func (q *MemQueue) AcquireLease(_ context.Context, documentID string, ttl time.Duration) (ReleaseFunc, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, held := q.leases[documentID]; held && time.Now().Before(cur.expiry) {
		return nil, false, nil
	}
	token := uuid.NewString()
	q.leases[documentID] = memLease{token: token, expiry: time.Now().Add(ttl)}
	release := func() {
		q.mu.Lock()
		if cur, held := q.leases[documentID]; held && cur.token == token {
			delete(q.leases, documentID)
		}
		q.mu.Unlock()
	}
	return release, true, nil
}

// Ping always succeeds for the in-memory backend.
func (q *MemQueue) Ping(context.Context) error { return nil }

// Close stops the queue; pending jobs already buffered remain readable.
func (q *MemQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
