package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tradie-marketplace/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// ReceiptCache implements ports.ReceiptCache in front of the
// recharge_receipts table. Receipts never change once written, so Set keeps
// the first value for a key.
type ReceiptCache struct {
	client goredis.UniversalClient
	prefix string
}

func NewReceiptCache(client goredis.UniversalClient) *ReceiptCache {
	return &ReceiptCache{
		client: client,
		prefix: keyPrefix + "receipt:",
	}
}

// Get returns the cached receipt, or nil on a miss. Undecodable entries are
// dropped and reported as a miss so the caller falls back to the database.
func (c *ReceiptCache) Get(ctx context.Context, key string) (*domain.RechargeReceipt, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis receipt get: %w", err)
	}

	receipt := &domain.RechargeReceipt{}
	if err := json.Unmarshal(raw, receipt); err != nil || receipt.Entry == nil {
		c.client.Del(ctx, c.prefix+key)
		return nil, nil
	}
	return receipt, nil
}

func (c *ReceiptCache) Set(ctx context.Context, receipt *domain.RechargeReceipt, ttl time.Duration) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := c.client.SetNX(ctx, c.prefix+receipt.Key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis receipt set: %w", err)
	}
	return nil
}
