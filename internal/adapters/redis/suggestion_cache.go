// Package redis provides Redis-backed adapters: the healing suggestion cache and the publish lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/healwright/internal/domain/healing"
	"github.com/target/healwright/internal/domain/model"
)

const defaultSuggestionPrefix = "healwright:suggestion:"

// SuggestionCache stores accepted generative suggestions as JSON with a TTL.
type SuggestionCache struct {
	client redis.UniversalClient
	prefix string
}

var _ healing.SuggestionCache = (*SuggestionCache)(nil)

// NewSuggestionCache creates a cache using the default key prefix.
func NewSuggestionCache(client redis.UniversalClient) *SuggestionCache {
	return NewSuggestionCacheWithPrefix(client, defaultSuggestionPrefix)
}

// NewSuggestionCacheWithPrefix creates a cache with a custom key prefix.
func NewSuggestionCacheWithPrefix(client redis.UniversalClient, prefix string) *SuggestionCache {
	return &SuggestionCache{client: client, prefix: prefix}
}

// Get returns the cached suggestion for key. A miss is (zero, false, nil).
func (c *SuggestionCache) Get(ctx context.Context, key string) (model.Suggestion, bool, error) {
	if key == "" {
		return model.Suggestion{}, false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Suggestion{}, false, nil
		}
		return model.Suggestion{}, false, fmt.Errorf("redis get: %w", err)
	}

	var s model.Suggestion
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt entry is a miss; drop it so the next accepted answer replaces it.
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return model.Suggestion{}, false, fmt.Errorf("unmarshal suggestion: %w", err)
	}
	if !s.HasSelector() {
		return model.Suggestion{}, false, nil
	}
	return s, true, nil
}

// Set stores s under key for ttl.
func (c *SuggestionCache) Set(ctx context.Context, key string, s model.Suggestion, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}
