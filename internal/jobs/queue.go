// Package jobs runs background work: subscriber notifications, GitHub
// merged-PR draft generation, and periodic maintenance.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// NotifyQueue carries post IDs whose subscribers need emailing.
	NotifyQueue = "notify:queue"
	// GitHubQueue carries merged-PR records awaiting draft generation.
	GitHubQueue = "github:events"
)

// ErrQueueEmpty is returned by Dequeue when no task arrived in time.
var ErrQueueEmpty = errors.New("queue empty")

// Queue is a Redis-list backed task queue. Producers LPUSH JSON
// payloads; workers BRPOP them.
type Queue struct {
	client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a JSON-encoded task onto the named queue.
func (q *Queue) Enqueue(ctx context.Context, queue string, task any) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task and decodes it into
// dest. Returns ErrQueueEmpty on timeout.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration, dest any) error {
	result, err := q.client.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return ErrQueueEmpty
	}
	if err != nil {
		return fmt.Errorf("dequeue %s: %w", queue, err)
	}
	// BRPOP returns [key, value]
	if len(result) != 2 {
		return fmt.Errorf("dequeue %s: unexpected reply length %d", queue, len(result))
	}
	if err := json.Unmarshal([]byte(result[1]), dest); err != nil {
		return fmt.Errorf("decode task from %s: %w", queue, err)
	}
	return nil
}

// Len reports the number of pending tasks.
func (q *Queue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length %s: %w", queue, err)
	}
	return n, nil
}
