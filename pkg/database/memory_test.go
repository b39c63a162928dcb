package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

func ctx() context.Context { return context.Background() }

func TestMemoryStore_DevicesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore(fixture.Devices(), nil)
	require.NoError(t, s.PutDevice(ctx(), model.Device{ID: "9", Name: "Extra"}))

	devices, err := s.ListDevices(ctx())
	require.NoError(t, err)
	require.Len(t, devices, 6)
	assert.Equal(t, "1", devices[0].ID)
	assert.Equal(t, "9", devices[5].ID)
}

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	s := NewMemoryStore(fixture.Devices(), nil)
	d, err := s.GetDevice(ctx(), "1")
	require.NoError(t, err)
	*d.LastCheckout = time.Time{}
	d.Name = "mutated"

	again, err := s.GetDevice(ctx(), "1")
	require.NoError(t, err)
	assert.Equal(t, "iPhone 15 Pro", again.Name)
	assert.False(t, again.LastCheckout.IsZero())
}

func TestMemoryStore_UpdateDevice(t *testing.T) {
	s := NewMemoryStore(fixture.Devices(), nil)
	now := time.Now().UTC()

	d, err := s.UpdateDevice(ctx(), "2", map[string]any{
		store.FieldStatus:       model.StatusCheckedOut,
		store.FieldAssignedTo:   "3",
		store.FieldAssignedUser: "John Doe",
		store.FieldLastCheckout: &now,
		store.FieldUsageCount:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedOut, d.Status)
	assert.Equal(t, "3", d.AssignedTo)
	assert.Equal(t, 1, d.UsageCount)
	require.NotNil(t, d.LastCheckout)

	_, err = s.UpdateDevice(ctx(), "2", map[string]any{"Colour": "red"})
	assert.Error(t, err)

	_, err = s.UpdateDevice(ctx(), "missing", map[string]any{store.FieldName: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateDevice(ctx(), "2", nil)
	assert.Error(t, err)
}

func TestMemoryStore_DeleteDevice(t *testing.T) {
	s := NewMemoryStore(fixture.Devices(), nil)
	require.NoError(t, s.DeleteDevice(ctx(), "3"))
	assert.ErrorIs(t, s.DeleteDevice(ctx(), "3"), store.ErrNotFound)

	devices, err := s.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestMemoryStore_Users(t *testing.T) {
	s := NewMemoryStore(nil, fixture.Users())

	u, err := s.GetUserByUsername(ctx(), "jane.smith")
	require.NoError(t, err)
	assert.Equal(t, "4", u.ID)

	u, err = s.GetUserByEmail(ctx(), "ADMIN@company.com")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)

	_, err = s.GetUserByUsername(ctx(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	u, err = s.UpdateUser(ctx(), "4", model.UserPatch{Status: model.Ptr(model.UserInactive)})
	require.NoError(t, err)
	assert.False(t, u.IsActive())

	require.NoError(t, s.DeleteUser(ctx(), "4"))
	users, err := s.ListUsers(ctx())
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestMemoryStore_HistoryNewestFirst(t *testing.T) {
	s := NewMemoryStore(nil, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendHistory(ctx(), model.HistoryEntry{ID: "a", DeviceID: "1", Action: model.ActionCreated, Timestamp: base}))
	require.NoError(t, s.AppendHistory(ctx(), model.HistoryEntry{ID: "b", DeviceID: "1", Action: model.ActionCheckedOut, Timestamp: base.Add(time.Hour)}))
	require.NoError(t, s.AppendHistory(ctx(), model.HistoryEntry{ID: "c", DeviceID: "2", Action: model.ActionCreated, Timestamp: base}))

	entries, err := s.ListHistory(ctx(), "1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
}

func TestSeededMemoryStoreConstructor(t *testing.T) {
	s, err := store.NewStoreFactory(ctx(), store.StoreConfig{Provider: store.ProviderMemory}, map[string]store.StoreConstructor{
		store.ProviderMemory: NewSeededMemoryStore,
	})
	require.NoError(t, err)
	defer s.Close()

	devices, err := s.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 5)

	_, err = store.NewStoreFactory(ctx(), store.StoreConfig{Provider: "sqlite"}, map[string]store.StoreConstructor{
		store.ProviderMemory: NewSeededMemoryStore,
	})
	assert.ErrorContains(t, err, "unsupported database provider")
}

func TestOpenKnowsEveryProvider(t *testing.T) {
	c := Constructors()
	for _, p := range []string{store.ProviderDynamoDB, store.ProviderPostgres, store.ProviderMemory} {
		assert.Contains(t, c, p)
	}

	s, err := Open(ctx(), store.StoreConfig{Provider: store.ProviderMemory})
	require.NoError(t, err)
	devices, err := s.ListDevices(ctx())
	require.NoError(t, err)
	assert.Len(t, devices, 5)
}
