package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"incident-console/internal/client"
	"incident-console/internal/util"
)

const (
	provisionRateLimitPrefix = "provision_rate_limit:"
	tempLockPrefix           = "temp_lock:"
)

// RateLimitCache throttles administrative provisioning so a scripted
// or confused admin session cannot hammer the identity provider.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementProvisionCounter bumps the per-admin fixed-window counter
// and returns the new count.
func (c *RateLimitCache) IncrementProvisionCounter(ctx context.Context, adminID string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := provisionRateLimitPrefix + adminID
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to increment provisioning counter",
			zap.String("admin_id", adminID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment provisioning counter: %w", err)
	}

	util.Debug("Provisioning counter incremented",
		zap.String("admin_id", adminID),
		zap.Int64("count", count))
	return int(count), nil
}

// SetTemporaryLock marks an admin as locked out for ttl.
func (c *RateLimitCache) SetTemporaryLock(ctx context.Context, adminID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lockKey := tempLockPrefix + adminID
	success, err := c.client.SetNX(ctx, lockKey, "locked", ttl)
	if err != nil {
		util.Error("Failed to set temporary lock",
			zap.String("admin_id", adminID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set temporary lock: %w", err)
	}
	if !success {
		return fmt.Errorf("temporary lock already exists for admin: %s", adminID)
	}
	return nil
}

// IsLocked reports whether the admin currently holds a lockout.
func (c *RateLimitCache) IsLocked(ctx context.Context, adminID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, tempLockPrefix+adminID)
	if err != nil {
		util.Error("Failed to check admin lock",
			zap.String("admin_id", adminID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check admin lock: %w", err)
	}
	return exists, nil
}
