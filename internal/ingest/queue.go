package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadpulse/outreach/internal/domain"
)

// RedisQueue is a Redis-list interaction queue: ingestion pushes with
// LPUSH, the consumer pops with BRPOP. Events survive consumer restarts;
// losing Redis loses only the fan-out, never the interaction record
// itself, which is already durable in Postgres by enqueue time.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes one interaction onto the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, ix *domain.Interaction) error {
	data, err := json.Marshal(ix)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks up to timeout for the next interaction. Returns nil with
// no error when the timeout elapses empty.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Interaction, error) {
	vals, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// BRPOP returns [key, value].
	var ix domain.Interaction
	if err := json.Unmarshal([]byte(vals[1]), &ix); err != nil {
		return nil, err
	}
	return &ix, nil
}

// Len reports the queue depth.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
