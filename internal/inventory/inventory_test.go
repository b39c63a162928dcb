package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdemetris/devicehub/internal/server"
	"bdemetris/devicehub/pkg/apiclient"
	"bdemetris/devicehub/pkg/database"
	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
)

var errUnreachable = errors.New("dial tcp 127.0.0.1:5000: connect: connection refused")

// downRemote fails every call the way an unreachable API does.
type downRemote struct{}

func (downRemote) ListDevices(context.Context) ([]model.APIDevice, error) { return nil, errUnreachable }
func (downRemote) SearchDevices(context.Context, string) ([]model.APIDevice, error) {
	return nil, errUnreachable
}
func (downRemote) CreateDevice(context.Context, model.APIDevice) (model.APIDevice, error) {
	return model.APIDevice{}, errUnreachable
}
func (downRemote) UpdateDevice(context.Context, string, map[string]any) (model.APIDevice, error) {
	return model.APIDevice{}, errUnreachable
}
func (downRemote) CheckoutDevice(context.Context, string, string) (model.APIDevice, error) {
	return model.APIDevice{}, errUnreachable
}
func (downRemote) CheckinDevice(context.Context, string) (model.APIDevice, error) {
	return model.APIDevice{}, errUnreachable
}
func (downRemote) Recommendations(context.Context) ([]model.APIDevice, error) {
	return nil, errUnreachable
}
func (downRemote) ListUsers(context.Context) ([]model.APIUser, error) { return nil, errUnreachable }
func (downRemote) CreateUser(context.Context, model.APIUser) (model.APIUser, error) {
	return model.APIUser{}, errUnreachable
}
func (downRemote) DeviceHistory(context.Context, string) ([]model.APIHistory, error) {
	return nil, errUnreachable
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newOffline returns a holder loaded from the seed after a failed API load.
func newOffline(t *testing.T, opts ...Option) *Inventory {
	t.Helper()
	inv := New(downRemote{}, append([]Option{WithClock(fixedClock)}, opts...)...)
	require.Error(t, inv.Load(context.Background()))
	return inv
}

// newOnline returns a holder talking to a real inventory server seeded with
// the fixture data.
func newOnline(t *testing.T) *Inventory {
	t.Helper()
	st := database.NewMemoryStore(fixture.Devices(), fixture.Users())
	ts := httptest.NewServer(server.New(st).Handler())
	t.Cleanup(ts.Close)
	inv := New(apiclient.New(ts.URL), WithClock(fixedClock))
	require.NoError(t, inv.Load(context.Background()))
	return inv
}

func assertAssignmentInvariant(t *testing.T, inv *Inventory) {
	t.Helper()
	for _, d := range inv.Devices() {
		assert.Equal(t, d.Status == model.StatusCheckedOut, d.AssignedTo != "",
			"device %s: status %q, assignedTo %q", d.ID, d.Status, d.AssignedTo)
		if d.AssignedTo == "" {
			assert.Empty(t, d.AssignedUser, "device %s", d.ID)
		}
	}
}

func TestLoad_FallsBackToSeed(t *testing.T) {
	inv := newOffline(t)

	assert.Len(t, inv.Devices(), 5)
	assert.Len(t, inv.Users(), 4)
	assert.Equal(t, errUnreachable.Error(), inv.LastError())
	assert.False(t, inv.Loading())
	assertAssignmentInvariant(t, inv)
}

func TestLoad_ReplacesBothCollections(t *testing.T) {
	inv := newOnline(t)
	_, err := inv.AddUser(context.Background(), NewUser{Name: "Extra", Email: "extra@company.com", Department: "Ops"})
	require.NoError(t, err)
	require.Len(t, inv.Users(), 5)

	// A failed reload replaces everything with the seed, not just one side.
	inv.remote = downRemote{}
	require.Error(t, inv.Load(context.Background()))
	assert.Len(t, inv.Users(), 4)
	assert.Len(t, inv.Devices(), 5)
}

func TestLoad_MapsAssigneesToLocalUsers(t *testing.T) {
	inv := newOnline(t)
	assert.Empty(t, inv.LastError())

	d, ok := inv.Device("1")
	require.True(t, ok)
	assert.Equal(t, "3", d.AssignedTo)
	assert.Equal(t, "John Doe", d.AssignedUser)
	assertAssignmentInvariant(t, inv)
}

func TestCheckout_OfflineScenario(t *testing.T) {
	inv := newOffline(t)

	res, err := inv.CheckoutDevice(context.Background(), "2", "2")
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)
	assert.ErrorIs(t, res.Cause, errUnreachable)

	d, ok := inv.Device("2")
	require.True(t, ok)
	assert.Equal(t, model.StatusCheckedOut, d.Status)
	assert.Equal(t, "2", d.AssignedTo)
	assert.Equal(t, "Viewer User", d.AssignedUser)
	require.NotNil(t, d.LastCheckout)
	assert.Equal(t, fixedNow, *d.LastCheckout)
	assert.Equal(t, 1, d.UsageCount)
	assertAssignmentInvariant(t, inv)
}

func TestCheckout_Online(t *testing.T) {
	inv := newOnline(t)

	res, err := inv.CheckoutDevice(context.Background(), "2", "3")
	require.NoError(t, err)
	assert.Equal(t, Persisted, res.Persistence)
	assert.NoError(t, res.Cause)
	assert.Equal(t, model.StatusCheckedOut, res.Device.Status)
	assert.Equal(t, "3", res.Device.AssignedTo)
	assert.Equal(t, "John Doe", res.Device.AssignedUser)

	res, err = inv.CheckinDevice(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, Persisted, res.Persistence)
	assert.Equal(t, model.StatusAvailable, res.Device.Status)
	assert.False(t, res.Device.IsAssigned())
	assert.NotNil(t, res.Device.LastCheckin)

	history, err := inv.History(context.Background(), "2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionCheckedIn, history[0].Action)
}

func TestCheckout_GuardRails(t *testing.T) {
	inv := newOffline(t)
	_, err := inv.UpdateUser("4", model.UserPatch{Status: model.Ptr(model.UserInactive)})
	require.NoError(t, err)

	cases := []struct {
		device, user string
		want         error
	}{
		{"nope", "2", ErrDeviceNotFound},
		{"1", "2", ErrDeviceUnavailable},
		{"3", "2", ErrDeviceUnavailable},
		{"2", "nope", ErrUserNotFound},
		{"2", "4", ErrUserInactive},
	}
	for _, tc := range cases {
		_, err := inv.CheckoutDevice(context.Background(), tc.device, tc.user)
		assert.ErrorIs(t, err, tc.want, "device %s user %s", tc.device, tc.user)
	}

	_, err = inv.CheckinDevice(context.Background(), "2")
	assert.ErrorIs(t, err, ErrNotCheckedOut)

	d, _ := inv.Device("2")
	assert.Equal(t, model.StatusAvailable, d.Status)
}

func TestCheckin_Offline(t *testing.T) {
	inv := newOffline(t)

	res, err := inv.CheckinDevice(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)
	assert.Equal(t, model.StatusAvailable, res.Device.Status)
	assert.Empty(t, res.Device.AssignedTo)
	assert.Empty(t, res.Device.AssignedUser)
	require.NotNil(t, res.Device.LastCheckin)
	assert.Equal(t, fixedNow, *res.Device.LastCheckin)
	assertAssignmentInvariant(t, inv)
}

func TestAddDevice_OfflineScenario(t *testing.T) {
	inv := newOffline(t)
	before := inv.Devices()

	in := NewDevice{Name: "Test", Type: model.TypeLaptop, SerialNumber: "T-1", OSVersion: "Ubuntu 24.04"}
	res, err := inv.AddDevice(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)

	after := inv.Devices()
	require.Len(t, after, len(before)+1)
	added := after[len(after)-1]
	assert.Equal(t, res.Device.ID, added.ID)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "Test", added.Name)
	assert.Equal(t, model.StatusAvailable, added.Status)
	assert.Empty(t, added.AssignedTo)

	// Same clock, so the second id must be bumped to stay unique.
	res2, err := inv.AddDevice(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, res.Device.ID, res2.Device.ID)

	seen := map[string]bool{}
	for _, d := range inv.Devices() {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestAddDevice_Online(t *testing.T) {
	inv := newOnline(t)

	res, err := inv.AddDevice(context.Background(), NewDevice{
		Name: "Galaxy Tab", Type: model.TypeAndroidTablet, SerialNumber: "TAB-1", OSVersion: "Android 13",
		Location: "Lab", PurchaseDate: "2024-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, Persisted, res.Persistence)
	assert.Equal(t, "Galaxy Tab", res.Device.Name)
	assert.Equal(t, "Lab", res.Device.Location)
	assert.Len(t, inv.Devices(), 6)

	// The server rejects the duplicate serial; locally it becomes degraded.
	res, err = inv.AddDevice(context.Background(), NewDevice{
		Name: "Dup", Type: model.TypeAndroidTablet, SerialNumber: "TAB-1", OSVersion: "Android 13",
	})
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)
	var apiErr *apiclient.Error
	require.True(t, errors.As(res.Cause, &apiErr))
	assert.Equal(t, "Serial number already exists", apiErr.Message)
	assert.Equal(t, "Serial number already exists", inv.LastError())
}

func TestAddDevice_Validation(t *testing.T) {
	inv := newOffline(t)
	_, err := inv.AddDevice(context.Background(), NewDevice{Name: "x", Type: "Toaster", SerialNumber: "s", OSVersion: "o"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = inv.AddDevice(context.Background(), NewDevice{
		Name: "x", Type: model.TypeLaptop, SerialNumber: "s", OSVersion: "o", Status: model.StatusCheckedOut,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, inv.Devices(), 5)
}

func TestStrictMode_LeavesStateUntouched(t *testing.T) {
	inv := newOffline(t, WithFallbackMode(FallbackStrict))
	before := inv.Devices()

	_, err := inv.AddDevice(context.Background(), NewDevice{Name: "Test", Type: model.TypeLaptop, SerialNumber: "T", OSVersion: "o"})
	assert.ErrorIs(t, err, errUnreachable)

	_, err = inv.CheckoutDevice(context.Background(), "2", "2")
	assert.ErrorIs(t, err, errUnreachable)

	_, err = inv.UpdateDevice(context.Background(), "4", model.DevicePatch{Notes: model.Ptr("x")})
	assert.ErrorIs(t, err, errUnreachable)

	_, _, err = inv.Search(context.Background(), "pixel")
	assert.ErrorIs(t, err, errUnreachable)

	assert.Equal(t, before, inv.Devices())
}

func TestUpdateDevice_OfflineMergesPatch(t *testing.T) {
	inv := newOffline(t)

	res, err := inv.UpdateDevice(context.Background(), "1", model.DevicePatch{
		Status: model.Ptr(model.StatusMaintenance),
		Notes:  model.Ptr("Battery swelling"),
	})
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)
	assert.Equal(t, model.StatusMaintenance, res.Device.Status)
	assert.Equal(t, "Battery swelling", res.Device.Notes)
	assert.Equal(t, "iPhone 15 Pro", res.Device.Name)
	assertAssignmentInvariant(t, inv)

	_, err = inv.UpdateDevice(context.Background(), "2", model.DevicePatch{Status: model.Ptr(model.StatusCheckedOut)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = inv.UpdateDevice(context.Background(), "missing", model.DevicePatch{Notes: model.Ptr("x")})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestUpdateDevice_Online(t *testing.T) {
	inv := newOnline(t)

	res, err := inv.UpdateDevice(context.Background(), "5", model.DevicePatch{Status: model.Ptr(model.StatusRetired)})
	require.NoError(t, err)
	assert.Equal(t, Persisted, res.Persistence)
	assert.Equal(t, model.StatusRetired, res.Device.Status)
	assert.False(t, res.Device.IsAssigned())
	assertAssignmentInvariant(t, inv)
}

func TestDeleteDevice_LocalOnly(t *testing.T) {
	inv := newOffline(t)
	assert.True(t, inv.DeleteDevice("3"))
	assert.False(t, inv.DeleteDevice("3"))
	_, ok := inv.Device("3")
	assert.False(t, ok)
	assert.Len(t, inv.Devices(), 4)
}

func TestDeleteUser_ClearsAssignments(t *testing.T) {
	inv := newOffline(t)
	_, err := inv.CheckoutDevice(context.Background(), "4", "3")
	require.NoError(t, err)

	assert.True(t, inv.DeleteUser("3"))
	for _, d := range inv.Devices() {
		assert.NotEqual(t, "3", d.AssignedTo, "device %s", d.ID)
	}
	d, _ := inv.Device("1")
	assert.Equal(t, model.StatusAvailable, d.Status)
	d, _ = inv.Device("4")
	assert.Equal(t, model.StatusAvailable, d.Status)
	assertAssignmentInvariant(t, inv)

	assert.False(t, inv.DeleteUser("3"))
}

func TestDeleteUser_ClearsUnmappedAssignee(t *testing.T) {
	devices := fixture.Devices()
	devices[1].Status = model.StatusCheckedOut
	devices[1].AssignedTo = "ghost@company.com"
	devices[1].AssignedUser = "ghost@company.com"
	st := database.NewMemoryStore(devices, fixture.Users())
	ts := httptest.NewServer(server.New(st).Handler())
	t.Cleanup(ts.Close)
	inv := New(apiclient.New(ts.URL), WithClock(fixedClock))
	require.NoError(t, inv.Load(context.Background()))

	d, _ := inv.Device("2")
	require.Equal(t, "ghost@company.com", d.AssignedTo)

	assert.False(t, inv.DeleteUser("ghost@company.com"))
	d, _ = inv.Device("2")
	assert.Equal(t, model.StatusAvailable, d.Status)
	assert.False(t, d.IsAssigned())
	assert.Len(t, inv.Users(), 4)
}

func TestUpdateUser_RenamesAssignee(t *testing.T) {
	inv := newOffline(t)
	u, err := inv.UpdateUser("3", model.UserPatch{Name: model.Ptr("Johnny Doe")})
	require.NoError(t, err)
	assert.Equal(t, "Johnny Doe", u.Name)

	d, _ := inv.Device("1")
	assert.Equal(t, "Johnny Doe", d.AssignedUser)

	_, err = inv.UpdateUser("nope", model.UserPatch{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddUser(t *testing.T) {
	inv := newOffline(t)

	res, err := inv.AddUser(context.Background(), NewUser{
		Username: "sam", Password: "secret1", Name: "Sam", Email: "sam@company.com", Department: "Ops",
	})
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Persistence)
	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, model.RoleViewer, res.User.Role)
	assert.True(t, res.User.IsActive())
	assert.Len(t, inv.Users(), 5)

	_, err = inv.AddUser(context.Background(), NewUser{Name: "Sam", Email: "SAM@company.com", Department: "Ops"})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = inv.AddUser(context.Background(), NewUser{Name: "No Mail", Email: "nomail", Department: "Ops"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddUser_OnlineKeepsCredentials(t *testing.T) {
	inv := newOnline(t)

	res, err := inv.AddUser(context.Background(), NewUser{
		Username: "sammy", Password: "secret1", Name: "Sam", Email: "sam@company.com", Department: "Ops", Role: model.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, Persisted, res.Persistence)
	assert.Equal(t, "sammy", res.User.Username)
	assert.Equal(t, "secret1", res.User.Password)
	assert.True(t, res.User.IsAdmin())
}

func TestSearchAndRecommendations(t *testing.T) {
	offline := newOffline(t)
	found, p, err := offline.Search(context.Background(), "pixel")
	require.NoError(t, err)
	assert.Equal(t, Degraded, p)
	require.Len(t, found, 1)
	assert.Equal(t, "5", found[0].ID)

	recs, p, err := offline.Recommendations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Degraded, p)
	assert.Len(t, recs, 5)

	online := newOnline(t)
	found, p, err = online.Search(context.Background(), "john")
	require.NoError(t, err)
	assert.Equal(t, Persisted, p)
	require.Len(t, found, 1)
	assert.Equal(t, "3", found[0].AssignedTo)

	found, _, err = online.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestHistory_NoFallback(t *testing.T) {
	inv := newOffline(t)
	_, err := inv.History(context.Background(), "1")
	assert.ErrorIs(t, err, errUnreachable)
}

func TestConcurrentWritesKeepInvariant(t *testing.T) {
	inv := newOffline(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			switch i % 4 {
			case 0:
				_, _ = inv.CheckoutDevice(ctx, "2", "3")
			case 1:
				_, _ = inv.CheckinDevice(ctx, "2")
			case 2:
				_, _ = inv.AddDevice(ctx, NewDevice{
					Name: "d", Type: model.TypeDesktop, SerialNumber: fmt.Sprint(i), OSVersion: "x",
				})
			case 3:
				_ = inv.Devices()
			}
		}(i)
	}
	wg.Wait()
	assertAssignmentInvariant(t, inv)
	assert.Len(t, inv.Devices(), 10)
}

func TestParseFallbackMode(t *testing.T) {
	m, err := ParseFallbackMode("")
	require.NoError(t, err)
	assert.Equal(t, FallbackLocal, m)
	m, err = ParseFallbackMode("STRICT")
	require.NoError(t, err)
	assert.Equal(t, FallbackStrict, m)
	_, err = ParseFallbackMode("queue")
	assert.Error(t, err)
}
