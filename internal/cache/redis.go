package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const reasoningKeyPrefix = "trial_match:reasoning:"

// ReasoningCache stores eligibility reasoning in Redis
type ReasoningCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// CachedReasoning represents cached reasoning with metadata
type CachedReasoning struct {
	Data      *domain.EligibilityReasoning `json:"data"`
	CachedAt  time.Time                    `json:"cached_at"`
	ExpiresAt time.Time                    `json:"expires_at"`
}

// NewReasoningCache connects to Redis and verifies the connection.
func NewReasoningCache(config domain.CacheConfig) (*ReasoningCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewReasoningCacheWithClient(client, config.DefaultTTL), nil
}

// NewReasoningCacheWithClient wraps an existing client.
func NewReasoningCacheWithClient(client *redis.Client, ttl time.Duration) *ReasoningCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReasoningCache{redis: client, defaultTTL: ttl}
}

// GetReasoning returns cached reasoning, or nil on a miss.
func (c *ReasoningCache) GetReasoning(ctx context.Context, patientID, trialID string) (*domain.EligibilityReasoning, error) {
	key := ReasoningKey(patientID, trialID)

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reasoning cache: %w", err)
	}

	var cached CachedReasoning
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, nil
	}
	return cached.Data, nil
}

// SetReasoning caches reasoning with the default TTL.
func (c *ReasoningCache) SetReasoning(ctx context.Context, patientID, trialID string, reasoning *domain.EligibilityReasoning) error {
	now := time.Now()
	cached := CachedReasoning{
		Data:      reasoning,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning cache data: %w", err)
	}
	return c.redis.Set(ctx, ReasoningKey(patientID, trialID), data, c.defaultTTL).Err()
}

// InvalidatePatient removes every cached verdict for a patient.
func (c *ReasoningCache) InvalidatePatient(ctx context.Context, patientID string) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, reasoningKeyPrefix+patientKey(patientID)+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan reasoning cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Close closes the Redis client.
func (c *ReasoningCache) Close() error {
	return c.redis.Close()
}

// ReasoningKey builds the cache key for a patient and trial.
func ReasoningKey(patientID, trialID string) string {
	trialHash := sha256.Sum256([]byte(trialID))
	return fmt.Sprintf("%s%s:%x", reasoningKeyPrefix, patientKey(patientID), trialHash[:8])
}

func patientKey(patientID string) string {
	h := sha256.Sum256([]byte(patientID))
	return fmt.Sprintf("%x", h[:8])
}
