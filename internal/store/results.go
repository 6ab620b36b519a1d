package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultResultTTL is how long a submission result stays in the replay cache.
const DefaultResultTTL = 24 * time.Hour

// ResultCache is a fast path for idempotent replays. The submissions table
// stays authoritative; a cache miss or failure only costs a database read.
type ResultCache interface {
	Get(ctx context.Context, learnerID int64, kind Kind, targetID int64, key string) (Submission, bool, error)
	Put(ctx context.Context, s Submission) error
}

// NopResultCache never hits.
type NopResultCache struct{}

func (NopResultCache) Get(context.Context, int64, Kind, int64, string) (Submission, bool, error) {
	return Submission{}, false, nil
}

func (NopResultCache) Put(context.Context, Submission) error { return nil }

// RedisResultCache stores submissions in Redis under learn:submit keys.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache creates a replay cache on client.
func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &RedisResultCache{client: client, ttl: ttl}
}

func submissionCacheKey(learnerID int64, kind Kind, targetID int64, key string) string {
	return fmt.Sprintf("learn:submit:%s:%d:%d:%s", kind, learnerID, targetID, key)
}

func (c *RedisResultCache) Get(ctx context.Context, learnerID int64, kind Kind, targetID int64, key string) (Submission, bool, error) {
	raw, err := c.client.Get(ctx, submissionCacheKey(learnerID, kind, targetID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, fmt.Errorf("reading cached submission: %w", err)
	}
	var s Submission
	if err := json.Unmarshal(raw, &s); err != nil {
		return Submission{}, false, fmt.Errorf("decoding cached submission: %w", err)
	}
	return s, true, nil
}

func (c *RedisResultCache) Put(ctx context.Context, s Submission) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}
	if err := c.client.Set(ctx, submissionCacheKey(s.LearnerID, s.Kind, s.TargetID, s.Key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching submission: %w", err)
	}
	return nil
}
