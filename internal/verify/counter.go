package verify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter tracks decided attempts per (session, student).
type AttemptCounter interface {
	Count(ctx context.Context, sessionID, studentID string) (int, error)
	Increment(ctx context.Context, sessionID, studentID string) (int, error)
}

// RedisCounter counts attempts in Redis so the cap holds across API
// replicas. Keys expire after the TTL; sessions never outlive a school day.
type RedisCounter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCounter creates a counter.
func NewRedisCounter(client *redis.Client, ttl time.Duration) *RedisCounter {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisCounter{client: client, prefix: "rollcall:attempts:", ttl: ttl}
}

func (c *RedisCounter) key(sessionID, studentID string) string {
	return c.prefix + sessionID + ":" + studentID
}

// Count returns the attempts consumed so far.
func (c *RedisCounter) Count(ctx context.Context, sessionID, studentID string) (int, error) {
	n, err := c.client.Get(ctx, c.key(sessionID, studentID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Increment bumps the counter and returns the new value.
func (c *RedisCounter) Increment(ctx context.Context, sessionID, studentID string) (int, error) {
	key := c.key(sessionID, studentID)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.client.Expire(ctx, key, c.ttl).Err()
	}
	return int(n), nil
}

// MemoryCounter is a process-local counter for dev and tests.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

// Count returns the attempts consumed so far.
func (c *MemoryCounter) Count(_ context.Context, sessionID, studentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[sessionID+":"+studentID], nil
}

// Increment bumps the counter and returns the new value.
func (c *MemoryCounter) Increment(_ context.Context, sessionID, studentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := sessionID + ":" + studentID
	c.counts[key]++
	return c.counts[key], nil
}
