package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

// MemoryStore is an in-memory Store. Reads return copies so callers
// cannot mutate stored records.
type MemoryStore struct {
	mu          sync.RWMutex
	devices     map[string]model.Device
	deviceOrder []string
	users       map[string]model.User
	userOrder   []string
	history     []model.HistoryEntry
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding the given records.
func NewMemoryStore(devices []model.Device, users []model.User) *MemoryStore {
	s := &MemoryStore{
		devices: make(map[string]model.Device, len(devices)),
		users:   make(map[string]model.User, len(users)),
	}
	for _, d := range devices {
		s.putDeviceLocked(d)
	}
	for _, u := range users {
		s.putUserLocked(u)
	}
	return s
}

// NewSeededMemoryStore is the in-memory StoreConstructor; it starts from
// the fixture inventory.
func NewSeededMemoryStore(_ context.Context, _ string) (store.Store, error) {
	return NewMemoryStore(fixture.Devices(), fixture.Users()), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) putDeviceLocked(d model.Device) {
	if _, exists := s.devices[d.ID]; !exists {
		s.deviceOrder = append(s.deviceOrder, d.ID)
	}
	s.devices[d.ID] = d.Clone()
}

func (s *MemoryStore) putUserLocked(u model.User) {
	if _, exists := s.users[u.ID]; !exists {
		s.userOrder = append(s.userOrder, u.ID)
	}
	s.users[u.ID] = u
}

// PutDevice inserts or replaces a device.
func (s *MemoryStore) PutDevice(_ context.Context, device model.Device) error {
	if device.ID == "" {
		return fmt.Errorf("device id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putDeviceLocked(device)
	return nil
}

func (s *MemoryStore) GetDevice(_ context.Context, deviceID string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
	}
	return d.Clone(), nil
}

// ListDevices returns devices in insertion order.
func (s *MemoryStore) ListDevices(_ context.Context) ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		out = append(out, s.devices[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) UpdateDevice(_ context.Context, deviceID string, updates map[string]any) (model.Device, error) {
	if len(updates) == 0 {
		return model.Device{}, fmt.Errorf("no update parameters provided for device ID %s", deviceID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
	}
	d = d.Clone()
	if err := store.ApplyDeviceUpdates(&d, updates); err != nil {
		return model.Device{}, err
	}
	s.devices[deviceID] = d
	return d.Clone(), nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
	}
	delete(s.devices, deviceID)
	s.deviceOrder = removeID(s.deviceOrder, deviceID)
	return nil
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(_ context.Context, user model.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putUserLocked(user)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	return s.findUser(func(u model.User) bool { return u.Username == username }, username)
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	return s.findUser(func(u model.User) bool { return strings.EqualFold(u.Email, email) }, email)
}

func (s *MemoryStore) findUser(match func(model.User) bool, key string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.userOrder {
		if u := s.users[id]; match(u) {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", key, store.ErrNotFound)
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		out = append(out, s.users[id])
	}
	return out, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, userID string, patch model.UserPatch) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	patch.Apply(&u)
	s.users[userID] = u
	return u, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	delete(s.users, userID)
	s.userOrder = removeID(s.userOrder, userID)
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, deviceID string) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.HistoryEntry
	for _, h := range s.history {
		if h.DeviceID == deviceID {
			out = append(out, h)
		}
	}
	sortHistory(out)
	return out, nil
}

// sortHistory orders entries newest first.
func sortHistory(entries []model.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
