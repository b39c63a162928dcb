package database

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

func newCachedStore(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inner := NewMemoryStore(fixture.Devices(), fixture.Users())
	return NewCachedStore(inner, rdb, 0), inner, mr
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	c, inner, mr := newCachedStore(t)

	devices, err := c.ListDevices(ctx())
	require.NoError(t, err)
	require.Len(t, devices, 5)
	assert.True(t, mr.Exists(allDevicesCacheKey))

	// A write behind the cache's back is not visible until invalidation.
	require.NoError(t, inner.PutDevice(ctx(), model.Device{ID: "99"}))
	devices, err = c.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 5)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	c, _, mr := newCachedStore(t)

	_, err := c.ListDevices(ctx())
	require.NoError(t, err)

	_, err = c.UpdateDevice(ctx(), "2", map[string]any{store.FieldName: "Galaxy"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(allDevicesCacheKey))

	devices, err := c.ListDevices(ctx())
	require.NoError(t, err)
	assert.Equal(t, "Galaxy", devices[1].Name)

	require.NoError(t, c.DeleteDevice(ctx(), "5"))
	devices, err = c.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestCachedStore_FallsThroughWhenRedisDown(t *testing.T) {
	c, _, mr := newCachedStore(t)
	mr.Close()

	devices, err := c.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 5)
}

func TestCachedStore_PassesUsersThrough(t *testing.T) {
	c, _, _ := newCachedStore(t)
	u, err := c.GetUserByUsername(ctx(), "viewer")
	require.NoError(t, err)
	assert.Equal(t, "2", u.ID)
}
