package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/internal/view"
	"bdemetris/devicehub/pkg/model"
)

var showScopes = []string{"all", "mine", "available"}

// handleShow covers `show all`, `show mine`, `show available [filter]` and
// `show <id or serial>`.
func (a *App) handleShow(ctx context.Context, channelID, userID string, args []string) {
	if len(args) == 0 {
		a.sendText(channelID, "Usage: `@bot show all|mine|available [filter]|<ID or serial>`")
		return
	}

	devices := a.Inventory.Devices()
	scope := strings.ToLower(args[0])
	if !IsArgumentAccepted(showScopes, scope) {
		dev, ok := findDevice(devices, args[0])
		if !ok {
			a.sendText(channelID, fmt.Sprintf("Device `%s` was not found in the inventory.", args[0]))
			return
		}
		a.renderSingleDeviceDetail(channelID, dev)
		return
	}

	switch scope {
	case "all":
		a.renderDeviceTable(channelID, "All devices", view.FilterDevices(devices, view.DeviceQuery{}))
	case "mine":
		user, err := a.inventoryUser(channelID, userID)
		if err != nil {
			return
		}
		mine := view.DevicesForUser(devices, user.ID)
		view.SortByRecency(mine)
		a.renderDeviceTable(channelID, "Your devices", mine)
	case "available":
		filter := strings.Join(args[1:], " ")
		q := view.DeviceQuery{Search: filter, Status: string(model.StatusAvailable)}
		title := "Available devices"
		if filter != "" {
			title = fmt.Sprintf("Available devices matching '%s'", filter)
		}
		a.renderDeviceTable(channelID, title, view.FilterDevices(devices, q))
	}
}

// findDevice matches an id exactly or a serial number case-insensitively.
func findDevice(devices []model.Device, key string) (model.Device, bool) {
	for _, d := range devices {
		if d.ID == key {
			return d, true
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.SerialNumber, key) {
			return d, true
		}
	}
	return model.Device{}, false
}

// inventoryUser maps a Slack user to an inventory user by email. Failures
// are reported to the channel.
func (a *App) inventoryUser(channelID, slackUserID string) (model.User, error) {
	profile, err := a.API.GetUserInfo(slackUserID)
	if err != nil {
		a.logger().Error("slack GetUserInfo failed", "user", slackUserID, "error", err)
		a.sendText(channelID, "❌ Failed to retrieve your user profile from Slack.")
		return model.User{}, err
	}
	email := profile.Profile.Email
	user, ok := a.Inventory.UserByEmail(email)
	if !ok || email == "" {
		a.sendText(channelID, fmt.Sprintf("❌ No inventory account matches your Slack email `%s`.", email))
		return model.User{}, inventory.ErrUserNotFound
	}
	return user, nil
}

func (a *App) handleCheckoutDevice(ctx context.Context, channelID, userID string, args []string) {
	if len(args) != 1 {
		a.sendText(channelID, "Usage: `@bot checkout <ID or serial>`")
		return
	}
	dev, ok := findDevice(a.Inventory.Devices(), args[0])
	if !ok {
		a.sendText(channelID, fmt.Sprintf("Device `%s` was not found in the inventory.", args[0]))
		return
	}
	user, err := a.inventoryUser(channelID, userID)
	if err != nil {
		return
	}

	res, err := a.Inventory.CheckoutDevice(ctx, dev.ID, user.ID)
	if err != nil {
		a.logger().Warn("checkout rejected", "device", dev.ID, "user", user.ID, "error", err)
		a.sendText(channelID, fmt.Sprintf("❌ Could not check out `%s`: %s", dev.Name, userMessage(err)))
		return
	}
	a.sendText(channelID, fmt.Sprintf("✅ Device `%s` is now checked out to *%s*.%s",
		res.Device.Name, user.Name, degradedNote(res.Persistence, res.Cause)))
}

func (a *App) handleCheckinDevice(ctx context.Context, channelID, userID string, args []string) {
	if len(args) != 1 {
		a.sendText(channelID, "Usage: `@bot checkin <ID or serial>`")
		return
	}
	dev, ok := findDevice(a.Inventory.Devices(), args[0])
	if !ok {
		a.sendText(channelID, fmt.Sprintf("Device `%s` was not found in the inventory.", args[0]))
		return
	}
	user, err := a.inventoryUser(channelID, userID)
	if err != nil {
		return
	}
	if dev.IsAssigned() && dev.AssignedTo != user.ID && !user.IsAdmin() {
		a.sendText(channelID, fmt.Sprintf("❌ `%s` is checked out to %s; only they or an admin can check it in.", dev.Name, dev.AssignedUser))
		return
	}

	res, err := a.Inventory.CheckinDevice(ctx, dev.ID)
	if err != nil {
		a.sendText(channelID, fmt.Sprintf("❌ Could not check in `%s`: %s", dev.Name, userMessage(err)))
		return
	}
	a.sendText(channelID, fmt.Sprintf("✅ Device `%s` is back and available.%s",
		res.Device.Name, degradedNote(res.Persistence, res.Cause)))
}

func (a *App) handleStats(channelID string) {
	s := view.ComputeStats(a.Inventory.Devices(), a.Inventory.Users())
	text := fmt.Sprintf("*Inventory:* %d devices, %d available (%d%%), %d checked out (%d%%), %d in maintenance\n*Team:* %d users, %d active",
		s.TotalDevices, s.AvailableDevices, s.AvailableShare(), s.CheckedOutDevices, s.InUseShare(),
		s.MaintenanceDevices, s.TotalUsers, s.ActiveUsers)
	a.sendText(channelID, text)
}

func userMessage(err error) string {
	for _, known := range []error{
		inventory.ErrDeviceUnavailable, inventory.ErrNotCheckedOut,
		inventory.ErrUserInactive, inventory.ErrUserNotFound, inventory.ErrDeviceNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func degradedNote(p inventory.Persistence, cause error) string {
	if p != inventory.Degraded {
		return ""
	}
	return fmt.Sprintf("\n⚠️ The inventory service could not be reached (%v); the change is only recorded locally.", cause)
}
