package store

import (
	"context"
	"errors"

	"bdemetris/devicehub/pkg/model"
)

// Sentinel errors for store operations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// DeviceStore persists devices. UpdateDevice takes updates keyed by
// model.Device field names (e.g. "Status", "AssignedTo").
type DeviceStore interface {
	PutDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, deviceID string) (model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, updates map[string]any) (model.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) error
}

// UserStore persists users.
type UserStore interface {
	PutUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, userID string, patch model.UserPatch) (model.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// HistoryStore keeps the per-device audit trail.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	// ListHistory returns entries newest first.
	ListHistory(ctx context.Context, deviceID string) ([]model.HistoryEntry, error)
}

// Store defines the methods for interacting with the database.
// All application logic should depend only on this interface.
type Store interface {
	Close() error

	DeviceStore
	UserStore
	HistoryStore
}
