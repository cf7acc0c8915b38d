package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Narcis13/workscript/internal/workflow"
)

// Submission is a queued request to execute a workflow: either a stored
// definition referenced by id or an inline definition.
type Submission struct {
	ID         string               `json:"id"`
	WorkflowID string               `json:"workflowId,omitempty"`
	Definition *workflow.Definition `json:"definition,omitempty"`
	Options    *Options             `json:"options,omitempty"`
	Priority   int                  `json:"priority"`
	EnqueuedAt time.Time            `json:"enqueuedAt"`
}

// SubmissionQueue buffers execution requests between the API surface and
// the worker pool.
type SubmissionQueue interface {
	// Enqueue adds a submission to the queue.
	Enqueue(ctx context.Context, sub *Submission) error

	// Dequeue blocks until a submission is available or the queue closes.
	Dequeue(ctx context.Context) (*Submission, error)

	// Len returns the number of queued submissions.
	Len(ctx context.Context) (int64, error)

	// Close closes the queue.
	Close() error
}

// InMemoryQueue is a process-local priority queue.
type InMemoryQueue struct {
	subs   []*Submission
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

// NewInMemoryQueue creates an in-memory queue.
func NewInMemoryQueue() *InMemoryQueue {
	q := &InMemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a submission, keeping higher priorities first.
func (q *InMemoryQueue) Enqueue(ctx context.Context, sub *Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.EnqueuedAt = time.Now()

	inserted := false
	for i, s := range q.subs {
		if sub.Priority > s.Priority {
			q.subs = append(q.subs[:i], append([]*Submission{sub}, q.subs[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		q.subs = append(q.subs, sub)
	}

	q.cond.Signal()
	return nil
}

// Dequeue removes and returns the next submission, blocking while empty.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.subs) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed && len(q.subs) == 0 {
		return nil, fmt.Errorf("queue is closed")
	}

	sub := q.subs[0]
	q.subs = q.subs[1:]
	return sub, nil
}

// Len returns the number of queued submissions.
func (q *InMemoryQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.subs)), nil
}

// Close closes the queue and wakes blocked consumers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
	return nil
}

// RedisQueue is a shared submission queue backed by a Redis sorted set, so
// several server instances can feed one pool of workers.
type RedisQueue struct {
	client   *redis.Client
	queueKey string
}

// NewRedisQueue creates a Redis-backed queue and verifies connectivity.
func NewRedisQueue(client *redis.Client, keyPrefix string) (*RedisQueue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "workscript"
	}

	return &RedisQueue{
		client:   client,
		queueKey: keyPrefix + ":submissions",
	}, nil
}

// Enqueue adds a submission. Priority becomes part of the score so higher
// priorities pop first.
func (q *RedisQueue) Enqueue(ctx context.Context, sub *Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.EnqueuedAt = time.Now()

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	score := float64(time.Now().UnixNano()) - float64(sub.Priority)*1e9
	return q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  score,
		Member: data,
	}).Err()
}

// Dequeue pops the highest-priority submission, polling while empty.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Submission, error) {
	for {
		results, err := q.client.ZPopMin(ctx, q.queueKey, 1).Result()
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			var sub Submission
			if err := json.Unmarshal([]byte(results[0].Member.(string)), &sub); err != nil {
				return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
			}
			return &sub, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Len returns the number of queued submissions.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
