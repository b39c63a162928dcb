package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

// The Redis key for the cached device list
const allDevicesCacheKey = "cache:all_devices"

// CachedStore keeps the device list in Redis in front of another Store.
// Device writes drop the cached list; everything else passes through.
type CachedStore struct {
	store.Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.Store = (*CachedStore)(nil)

// NewCachedStore wraps inner. A zero ttl caches until the next device write.
func NewCachedStore(inner store.Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: slog.Default().With("store", "redis-cache"),
	}
}

// ListDevices serves from Redis when possible. Cache failures are logged
// and fall through to the wrapped store.
func (c *CachedStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	data, err := c.rdb.Get(ctx, allDevicesCacheKey).Bytes()
	if err == nil {
		var devices []model.Device
		if err := json.Unmarshal(data, &devices); err == nil {
			return devices, nil
		}
		c.logger.Warn("discarding unreadable device cache", "error", err)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("device cache read failed", "error", err)
	}

	devices, err := c.Store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	// Cache an empty JSON array rather than null.
	if devices == nil {
		devices = []model.Device{}
	}
	data, err = json.Marshal(devices)
	if err != nil {
		c.logger.Warn("marshal devices for cache", "error", err)
		return devices, nil
	}
	if err := c.rdb.Set(ctx, allDevicesCacheKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("device cache write failed", "error", err)
	}
	return devices, nil
}

func (c *CachedStore) invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, allDevicesCacheKey).Err(); err != nil {
		c.logger.Warn("device cache invalidation failed", "error", err)
	}
}

func (c *CachedStore) PutDevice(ctx context.Context, device model.Device) error {
	defer c.invalidate(ctx)
	return c.Store.PutDevice(ctx, device)
}

func (c *CachedStore) UpdateDevice(ctx context.Context, deviceID string, updates map[string]any) (model.Device, error) {
	defer c.invalidate(ctx)
	return c.Store.UpdateDevice(ctx, deviceID, updates)
}

func (c *CachedStore) DeleteDevice(ctx context.Context, deviceID string) error {
	defer c.invalidate(ctx)
	return c.Store.DeleteDevice(ctx, deviceID)
}
