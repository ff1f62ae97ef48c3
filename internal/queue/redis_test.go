package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := NewRedisQueue(&RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestRedisEnqueueDequeueFIFO(t *testing.T) {
	t.Parallel()
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if first.ID == "" || first.DocumentID != "doc-1" {
		t.Errorf("job = %+v, want populated id and doc-1", first)
	}
	if _, err := q.Enqueue(ctx, "doc-2"); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue error: %v", err)
	}
	if got.DocumentID != "doc-1" {
		t.Errorf("first dequeue = %s, want doc-1", got.DocumentID)
	}
	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue error: %v", err)
	}
	if got.DocumentID != "doc-2" {
		t.Errorf("second dequeue = %s, want doc-2", got.DocumentID)
	}
}

func TestRedisDequeueCancelled(t *testing.T) {
	t.Parallel()
	q, _ := newTestRedisQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("Dequeue on empty queue returned without error after cancel")
	}
}

func TestRedisLeaseSingleHolder(t *testing.T) {
	t.Parallel()
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	release, acquired, err := q.AcquireLease(ctx, "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease error: %v", err)
	}
	if !acquired {
		t.Fatal("first acquire failed")
	}

	_, again, err := q.AcquireLease(ctx, "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease error: %v", err)
	}
	if again {
		t.Error("second acquire succeeded while lease held")
	}

	// A different document is unaffected.
	relOther, other, err := q.AcquireLease(ctx, "doc-2", time.Minute)
	if err != nil || !other {
		t.Fatalf("acquire doc-2 = %v, %v; want success", other, err)
	}
	relOther()

	release()
	_, reacquired, err := q.AcquireLease(ctx, "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease error: %v", err)
	}
	if !reacquired {
		t.Error("acquire after release failed")
	}
}

func TestRedisLeaseExpires(t *testing.T) {
	t.Parallel()
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	_, acquired, err := q.AcquireLease(ctx, "doc-1", time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire = %v, %v; want success", acquired, err)
	}

	mr.FastForward(2 * time.Second)

	_, reacquired, err := q.AcquireLease(ctx, "doc-1", time.Second)
	if err != nil {
		t.Fatalf("AcquireLease error: %v", err)
	}
	if !reacquired {
		t.Error("acquire after TTL expiry failed")
	}
}

func TestRedisStaleReleaseDoesNotClobber(t *testing.T) {
	t.Parallel()
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	staleRelease, acquired, err := q.AcquireLease(ctx, "doc-1", time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire = %v, %v; want success", acquired, err)
	}

	mr.FastForward(2 * time.Second)

	// A second worker takes over after expiry.
	_, taken, err := q.AcquireLease(ctx, "doc-1", time.Minute)
	if err != nil || !taken {
		t.Fatalf("takeover acquire = %v, %v; want success", taken, err)
	}

	// The original holder's release must not clear the new lease.
	staleRelease()
	_, stolen, err := q.AcquireLease(ctx, "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease error: %v", err)
	}
	if stolen {
		t.Error("stale release cleared another holder's lease")
	}
}

func TestRedisPing(t *testing.T) {
	t.Parallel()
	q, mr := newTestRedisQueue(t)
	if err := q.Ping(context.Background()); err != nil {
		t.Errorf("Ping error: %v", err)
	}
	mr.Close()
	if err := q.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded against closed server")
	}
}
