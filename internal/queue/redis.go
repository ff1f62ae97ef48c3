package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobsKey        = "ragserve:ingest:jobs"
	leaseKeyPrefix = "ragserve:ingest:lease:"
)

// releaseScript deletes a lease key only when the holder token matches, so
// an expired lease reacquired by another worker is never released by the
// original holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisQueue is a Redis-backed job queue using a list for FIFO dispatch and
// SET NX EX keys for per-document ingestion leases.
type RedisQueue struct {
	client *redis.Client
}

// RedisConfig holds connection settings for the Redis queue.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string
	// Password is the optional AUTH password.
	Password string
	// DB is the logical database index.
	DB int
}

// NewRedisQueue connects a RedisQueue. The connection is verified lazily;
// call Ping at startup for an eager check.
func NewRedisQueue(cfg *RedisConfig) *RedisQueue {
	return &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Enqueue pushes a job onto the list. Duplicate enqueues of the same
// document are allowed; the lease makes processing single-flight.
func (q *RedisQueue) Enqueue(ctx context.Context, documentID string) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, jobsKey, payload).Err(); err != nil {
		return nil, fmt.Errorf("queue: enqueue document %s: %w", documentID, err)
	}
	return job, nil
}

// Dequeue blocks on BRPOP until a job arrives or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		// A bounded block keeps ctx cancellation responsive even on
		// go-redis versions that do not propagate it into BRPOP.
		vals, err := q.client.BRPop(ctx, 5*time.Second, jobsKey).Result()
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("queue: dequeue: %w", err)
		}
		var job Job
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			return nil, fmt.Errorf("queue: unmarshal job: %w", err)
		}
		return &job, nil
	}
}

// AcquireLease takes the per-document lease with SET NX EX. The release
// func is token-guarded so only the current holder can clear it.
func (q *RedisQueue) AcquireLease(ctx context.Context, documentID string, ttl time.Duration) (ReleaseFunc, bool, error) {
	key := leaseKeyPrefix + documentID
	token := uuid.NewString()
	ok, err := q.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("queue: acquire lease for %s: %w", documentID, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, q.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// Ping verifies the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
