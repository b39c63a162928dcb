// Package inventory holds the device and user collections mirrored from the
// inventory API. Writes go to the API first; when it cannot be reached the
// holder can apply them locally instead and says so in the result.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bdemetris/devicehub/pkg/database"
	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceUnavailable = errors.New("device is not available for checkout")
	ErrNotCheckedOut     = errors.New("device is not checked out")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user is not active")
	ErrDuplicateUser     = errors.New("a user with that email already exists")
	ErrInvalidInput      = errors.New("invalid input")
)

// Remote is the part of the inventory API the holder uses.
// *apiclient.Client satisfies it.
type Remote interface {
	ListDevices(ctx context.Context) ([]model.APIDevice, error)
	SearchDevices(ctx context.Context, query string) ([]model.APIDevice, error)
	CreateDevice(ctx context.Context, device model.APIDevice) (model.APIDevice, error)
	UpdateDevice(ctx context.Context, id string, updates map[string]any) (model.APIDevice, error)
	CheckoutDevice(ctx context.Context, id, user string) (model.APIDevice, error)
	CheckinDevice(ctx context.Context, id string) (model.APIDevice, error)
	Recommendations(ctx context.Context) ([]model.APIDevice, error)
	ListUsers(ctx context.Context) ([]model.APIUser, error)
	CreateUser(ctx context.Context, user model.APIUser) (model.APIUser, error)
	DeviceHistory(ctx context.Context, deviceID string) ([]model.APIHistory, error)
}

// Seed supplies the collections used when the API cannot be loaded.
// Any store.Store satisfies it.
type Seed interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// FallbackMode decides what happens to a write the API rejected or never
// received.
type FallbackMode int

const (
	// FallbackLocal applies the write locally and reports it as Degraded.
	FallbackLocal FallbackMode = iota
	// FallbackStrict returns the API error and leaves local state alone.
	FallbackStrict
)

func ParseFallbackMode(s string) (FallbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return FallbackLocal, nil
	case "strict":
		return FallbackStrict, nil
	}
	return FallbackLocal, fmt.Errorf("unknown fallback mode %q", s)
}

// Persistence records where a write ended up.
type Persistence int

const (
	// Persisted means the record came back from the API.
	Persisted Persistence = iota
	// Degraded means the record exists only in this holder.
	Degraded
)

func (p Persistence) String() string {
	if p == Degraded {
		return "degraded"
	}
	return "persisted"
}

// DeviceResult is the outcome of a device write. Cause is set when the
// write is Degraded.
type DeviceResult struct {
	Device      model.Device
	Persistence Persistence
	Cause       error
}

// UserResult is the outcome of a user write.
type UserResult struct {
	User        model.User
	Persistence Persistence
	Cause       error
}

// Inventory is safe for concurrent use. Concurrent writes to the same record
// are not serialised against the API; the last one to finish wins locally.
type Inventory struct {
	remote Remote
	seed   Seed
	mode   FallbackMode
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	devices   []model.Device
	users     []model.User
	lastError string
	loading   bool
}

type Option func(*Inventory)

func WithFallbackMode(mode FallbackMode) Option {
	return func(inv *Inventory) { inv.mode = mode }
}

func WithLogger(logger *slog.Logger) Option {
	return func(inv *Inventory) { inv.logger = logger }
}

// WithClock replaces time.Now for timestamps and local ids.
func WithClock(now func() time.Time) Option {
	return func(inv *Inventory) { inv.now = now }
}

// WithSeed replaces the built-in seed inventory.
func WithSeed(seed Seed) Option {
	return func(inv *Inventory) { inv.seed = seed }
}

// New returns an empty holder. Call Load to populate it.
func New(remote Remote, opts ...Option) *Inventory {
	inv := &Inventory{
		remote: remote,
		mode:   FallbackLocal,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.seed == nil {
		inv.seed = database.NewMemoryStore(fixture.Devices(), fixture.Users())
	}
	return inv
}

// Load fetches devices and users concurrently. If either fetch fails, the
// error is recorded and both collections are replaced by the seed; the
// error is also returned so callers can log it.
func (inv *Inventory) Load(ctx context.Context) error {
	inv.mu.Lock()
	inv.loading = true
	inv.mu.Unlock()

	var (
		apiDevices []model.APIDevice
		apiUsers   []model.APIUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		apiDevices, err = inv.remote.ListDevices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		apiUsers, err = inv.remote.ListUsers(gctx)
		return err
	})
	err := g.Wait()

	if err != nil {
		devices, users := inv.loadSeed(ctx)
		inv.mu.Lock()
		defer inv.mu.Unlock()
		inv.devices, inv.users = devices, users
		inv.lastError = err.Error()
		inv.loading = false
		inv.logger.Warn("inventory API unavailable, using seed data", "error", err,
			"devices", len(devices), "users", len(users))
		return fmt.Errorf("loading inventory: %w", err)
	}

	users := make([]model.User, 0, len(apiUsers))
	for _, a := range apiUsers {
		users = append(users, model.UserFromAPI(a))
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.users = users
	inv.devices = make([]model.Device, 0, len(apiDevices))
	for _, a := range apiDevices {
		inv.devices = append(inv.devices, inv.fromAPILocked(a))
	}
	inv.loading = false
	inv.logger.Info("inventory loaded", "devices", len(inv.devices), "users", len(inv.users))
	return nil
}

func (inv *Inventory) loadSeed(ctx context.Context) ([]model.Device, []model.User) {
	devices, err := inv.seed.ListDevices(ctx)
	if err != nil {
		inv.logger.Error("reading seed devices", "error", err)
		devices = nil
	}
	users, err := inv.seed.ListUsers(ctx)
	if err != nil {
		inv.logger.Error("reading seed users", "error", err)
		users = nil
	}
	return devices, users
}

// fromAPILocked converts a server record and maps the assignee, which the
// API stores as an email or a display name, back to the local user.
func (inv *Inventory) fromAPILocked(a model.APIDevice) model.Device {
	d := model.DeviceFromAPI(a)
	if !d.IsAssigned() {
		return d
	}
	for _, u := range inv.users {
		if u.ID == d.AssignedTo || strings.EqualFold(u.Email, d.AssignedTo) || u.Name == d.AssignedTo {
			d.AssignedTo = u.ID
			d.AssignedUser = u.Name
			break
		}
	}
	return d
}

// recordFailure stores the error message and decides whether to fall back.
func (inv *Inventory) recordFailure(op string, err error) bool {
	inv.mu.Lock()
	inv.lastError = err.Error()
	inv.mu.Unlock()
	inv.logger.Warn("inventory API call failed", "op", op, "error", err, "fallback", inv.mode == FallbackLocal)
	return inv.mode == FallbackLocal
}

// localIDLocked derives an id from the clock, bumped until it is unused.
func localIDLocked(now time.Time, taken func(string) bool) string {
	n := now.UnixMilli()
	for {
		id := strconv.FormatInt(n, 10)
		if !taken(id) {
			return id
		}
		n++
	}
}

func (inv *Inventory) deviceIndexLocked(id string) int {
	for i, d := range inv.devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (inv *Inventory) userIndexLocked(id string) int {
	for i, u := range inv.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// replaceDeviceLocked swaps in d if its id is still present.
func (inv *Inventory) replaceDeviceLocked(d model.Device) {
	if i := inv.deviceIndexLocked(d.ID); i >= 0 {
		inv.devices[i] = d
	}
}

func (inv *Inventory) Devices() []model.Device {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]model.Device, len(inv.devices))
	for i, d := range inv.devices {
		out[i] = d.Clone()
	}
	return out
}

func (inv *Inventory) Users() []model.User {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return append([]model.User(nil), inv.users...)
}

func (inv *Inventory) Device(id string) (model.Device, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if i := inv.deviceIndexLocked(id); i >= 0 {
		return inv.devices[i].Clone(), true
	}
	return model.Device{}, false
}

func (inv *Inventory) User(id string) (model.User, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if i := inv.userIndexLocked(id); i >= 0 {
		return inv.users[i], true
	}
	return model.User{}, false
}

// UserByEmail matches case-insensitively.
func (inv *Inventory) UserByEmail(email string) (model.User, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	for _, u := range inv.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return model.User{}, false
}

// LastError is the message of the most recent API failure, or "".
func (inv *Inventory) LastError() string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.lastError
}

func (inv *Inventory) Loading() bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.loading
}
