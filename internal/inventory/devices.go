package inventory

import (
	"context"
	"fmt"
	"strings"

	"bdemetris/devicehub/internal/view"
	"bdemetris/devicehub/pkg/model"
)

// NewDevice is the input to AddDevice. New devices never carry an
// assignment, so Status may not be Checked Out.
type NewDevice struct {
	Name         string
	Type         model.DeviceType
	SerialNumber string
	OSVersion    string
	Status       model.DeviceStatus
	Location     string
	PurchaseDate string
	Notes        string
}

func (n NewDevice) validate() error {
	switch {
	case strings.TrimSpace(n.Name) == "":
		return fmt.Errorf("%w: device name is required", ErrInvalidInput)
	case !n.Type.Valid():
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidInput, n.Type)
	case strings.TrimSpace(n.SerialNumber) == "":
		return fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	case strings.TrimSpace(n.OSVersion) == "":
		return fmt.Errorf("%w: OS version is required", ErrInvalidInput)
	case n.Status == model.StatusCheckedOut:
		return fmt.Errorf("%w: new devices cannot start checked out", ErrInvalidInput)
	}
	return nil
}

func (n NewDevice) device() model.Device {
	status := n.Status
	if status == "" {
		status = model.StatusAvailable
	}
	return model.Device{
		Name:         n.Name,
		Type:         n.Type,
		SerialNumber: n.SerialNumber,
		OSVersion:    n.OSVersion,
		Status:       status,
		Location:     n.Location,
		PurchaseDate: n.PurchaseDate,
		Notes:        n.Notes,
	}
}

// AddDevice creates a device through the API and appends the server's
// record. On failure in FallbackLocal mode the device is appended with a
// local id instead.
func (inv *Inventory) AddDevice(ctx context.Context, in NewDevice) (DeviceResult, error) {
	if err := in.validate(); err != nil {
		return DeviceResult{}, err
	}
	local := in.device()

	created, err := inv.remote.CreateDevice(ctx, model.DeviceToAPI(local))
	if err != nil {
		if !inv.recordFailure("add device", err) {
			return DeviceResult{}, fmt.Errorf("adding device: %w", err)
		}
		inv.mu.Lock()
		defer inv.mu.Unlock()
		now := inv.now()
		local.ID = localIDLocked(now, func(id string) bool { return inv.deviceIndexLocked(id) >= 0 })
		local.CreatedAt, local.UpdatedAt = now, now
		inv.devices = append(inv.devices, local)
		return DeviceResult{Device: local.Clone(), Persistence: Degraded, Cause: err}, nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	d := inv.fromAPILocked(created)
	inv.devices = append(inv.devices, d)
	return DeviceResult{Device: d.Clone(), Persistence: Persisted}, nil
}

// UpdateDevice sends patch to the API and replaces the local record with the
// server's. On fallback the patch is merged into the local record. Status can
// only be set to Checked Out on a device that already is; use CheckoutDevice.
func (inv *Inventory) UpdateDevice(ctx context.Context, id string, patch model.DevicePatch) (DeviceResult, error) {
	current, ok := inv.Device(id)
	if !ok {
		return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if patch.Status != nil && *patch.Status == model.StatusCheckedOut && current.Status != model.StatusCheckedOut {
		return DeviceResult{}, fmt.Errorf("%w: use checkout to assign a device", ErrInvalidInput)
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return DeviceResult{}, fmt.Errorf("%w: unknown device type %q", ErrInvalidInput, *patch.Type)
	}
	if patch.IsEmpty() {
		return DeviceResult{Device: current, Persistence: Persisted}, nil
	}

	updated, err := inv.remote.UpdateDevice(ctx, id, patch.APIUpdates())
	if err != nil {
		if !inv.recordFailure("update device", err) {
			return DeviceResult{}, fmt.Errorf("updating device %s: %w", id, err)
		}
		inv.mu.Lock()
		defer inv.mu.Unlock()
		i := inv.deviceIndexLocked(id)
		if i < 0 {
			return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
		}
		d := inv.devices[i].Clone()
		patch.Apply(&d)
		d.UpdatedAt = inv.now()
		inv.devices[i] = d
		return DeviceResult{Device: d.Clone(), Persistence: Degraded, Cause: err}, nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	d := inv.fromAPILocked(updated)
	inv.replaceDeviceLocked(d)
	return DeviceResult{Device: d.Clone(), Persistence: Persisted}, nil
}

// DeleteDevice removes the device locally. The API is not told.
func (inv *Inventory) DeleteDevice(id string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	i := inv.deviceIndexLocked(id)
	if i < 0 {
		return false
	}
	inv.devices = append(inv.devices[:i], inv.devices[i+1:]...)
	return true
}

// CheckoutDevice assigns an available device to an active user. The API is
// given the user's email.
func (inv *Inventory) CheckoutDevice(ctx context.Context, deviceID, userID string) (DeviceResult, error) {
	inv.mu.RLock()
	di, ui := inv.deviceIndexLocked(deviceID), inv.userIndexLocked(userID)
	var (
		device model.Device
		user   model.User
	)
	if di >= 0 {
		device = inv.devices[di]
	}
	if ui >= 0 {
		user = inv.users[ui]
	}
	inv.mu.RUnlock()

	switch {
	case di < 0:
		return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	case device.Status != model.StatusAvailable:
		return DeviceResult{}, fmt.Errorf("%w: %s is %s", ErrDeviceUnavailable, deviceID, device.Status)
	case ui < 0:
		return DeviceResult{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case !user.IsActive():
		return DeviceResult{}, fmt.Errorf("%w: %s", ErrUserInactive, user.Username)
	}

	apiUser := user.Email
	if apiUser == "" {
		apiUser = user.ID
	}
	updated, err := inv.remote.CheckoutDevice(ctx, deviceID, apiUser)
	if err != nil {
		if !inv.recordFailure("checkout device", err) {
			return DeviceResult{}, fmt.Errorf("checking out device %s: %w", deviceID, err)
		}
		inv.mu.Lock()
		defer inv.mu.Unlock()
		i := inv.deviceIndexLocked(deviceID)
		if i < 0 {
			return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		now := inv.now()
		d := inv.devices[i].Clone()
		d.Status = model.StatusCheckedOut
		d.AssignedTo = user.ID
		d.AssignedUser = user.Name
		d.LastCheckout = &now
		d.UsageCount++
		d.UpdatedAt = now
		inv.devices[i] = d
		return DeviceResult{Device: d.Clone(), Persistence: Degraded, Cause: err}, nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	d := inv.fromAPILocked(updated)
	inv.replaceDeviceLocked(d)
	return DeviceResult{Device: d.Clone(), Persistence: Persisted}, nil
}

// CheckinDevice returns a checked-out device and clears its assignment.
func (inv *Inventory) CheckinDevice(ctx context.Context, deviceID string) (DeviceResult, error) {
	device, ok := inv.Device(deviceID)
	if !ok {
		return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if device.Status != model.StatusCheckedOut {
		return DeviceResult{}, fmt.Errorf("%w: %s is %s", ErrNotCheckedOut, deviceID, device.Status)
	}

	updated, err := inv.remote.CheckinDevice(ctx, deviceID)
	if err != nil {
		if !inv.recordFailure("checkin device", err) {
			return DeviceResult{}, fmt.Errorf("checking in device %s: %w", deviceID, err)
		}
		inv.mu.Lock()
		defer inv.mu.Unlock()
		i := inv.deviceIndexLocked(deviceID)
		if i < 0 {
			return DeviceResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		now := inv.now()
		d := inv.devices[i].Clone()
		d.Status = model.StatusAvailable
		d.LastCheckin = &now
		d.UpdatedAt = now
		d.Normalize()
		inv.devices[i] = d
		return DeviceResult{Device: d.Clone(), Persistence: Degraded, Cause: err}, nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	d := inv.fromAPILocked(updated)
	if d.LastCheckin == nil {
		now := inv.now()
		d.LastCheckin = &now
	}
	inv.replaceDeviceLocked(d)
	return DeviceResult{Device: d.Clone(), Persistence: Persisted}, nil
}

// History returns the device's history from the API. There is no local
// fallback.
func (inv *Inventory) History(ctx context.Context, deviceID string) ([]model.HistoryEntry, error) {
	records, err := inv.remote.DeviceHistory(ctx, deviceID)
	if err != nil {
		inv.recordFailure("device history", err)
		return nil, fmt.Errorf("fetching history for %s: %w", deviceID, err)
	}
	out := make([]model.HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, model.HistoryFromAPI(r))
	}
	return out, nil
}

// Recommendations asks the API for devices worth rotating back into use.
// In FallbackLocal mode an API failure yields the same rule applied to the
// local collection.
func (inv *Inventory) Recommendations(ctx context.Context) ([]model.Device, Persistence, error) {
	records, err := inv.remote.Recommendations(ctx)
	if err != nil {
		if !inv.recordFailure("recommendations", err) {
			return nil, Degraded, fmt.Errorf("fetching recommendations: %w", err)
		}
		return view.Recommended(inv.Devices()), Degraded, nil
	}
	return inv.convert(records), Persisted, nil
}

// Search runs the API's device search. In FallbackLocal mode an API failure
// yields a local search over the same fields. An empty query matches nothing.
func (inv *Inventory) Search(ctx context.Context, query string) ([]model.Device, Persistence, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Persisted, nil
	}
	records, err := inv.remote.SearchDevices(ctx, query)
	if err != nil {
		if !inv.recordFailure("search devices", err) {
			return nil, Degraded, fmt.Errorf("searching devices: %w", err)
		}
		return view.FilterDevices(inv.Devices(), view.DeviceQuery{Search: query}), Degraded, nil
	}
	return inv.convert(records), Persisted, nil
}

func (inv *Inventory) convert(records []model.APIDevice) []model.Device {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]model.Device, 0, len(records))
	for _, r := range records {
		out = append(out, inv.fromAPILocked(r))
	}
	return out
}
