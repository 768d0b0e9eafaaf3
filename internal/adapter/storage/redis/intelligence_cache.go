package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// IntelligenceCache implements ports.IntelligenceCache. Each request's
// intelligence is a JSON blob under intel:<request_id>, overwritten on
// every recompute.
type IntelligenceCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewIntelligenceCache creates a new Redis-backed intelligence cache.
func NewIntelligenceCache(client goredis.UniversalClient) *IntelligenceCache {
	return &IntelligenceCache{
		client: client,
		prefix: keyPrefix + "intel:",
	}
}

func (c *IntelligenceCache) key(requestID uuid.UUID) string {
	return c.prefix + requestID.String()
}

// Get returns the cached intelligence, or nil on a miss.
func (c *IntelligenceCache) Get(ctx context.Context, requestID uuid.UUID) (*domain.RequestIntelligence, error) {
	raw, err := c.client.Get(ctx, c.key(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis intelligence get: %w", err)
	}

	intel := &domain.RequestIntelligence{}
	if err := json.Unmarshal(raw, intel); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.client.Del(ctx, c.key(requestID))
		return nil, nil
	}
	return intel, nil
}

// Set overwrites the cached intelligence for intel.RequestID.
func (c *IntelligenceCache) Set(ctx context.Context, intel *domain.RequestIntelligence, ttl time.Duration) error {
	raw, err := json.Marshal(intel)
	if err != nil {
		return fmt.Errorf("marshal intelligence: %w", err)
	}
	if err := c.client.Set(ctx, c.key(intel.RequestID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis intelligence set: %w", err)
	}
	return nil
}
