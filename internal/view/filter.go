// Package view filters, sorts and summarises already-loaded device and
// user lists. Every function is pure: the inputs are never modified.
package view

import (
	"sort"
	"strings"

	"bdemetris/devicehub/pkg/model"
)

// FilterAll disables a categorical filter.
const FilterAll = "all"

// DeviceQuery selects devices. Search matches name, serial, type, OS
// version and assignee. Status and Type match exactly, case-insensitively;
// empty or FilterAll matches everything.
type DeviceQuery struct {
	Search string
	Status string
	Type   string
}

func (q DeviceQuery) matches(d model.Device) bool {
	return matchesSearch(d, q.Search) && matchesStatus(d, q.Status) && matchesType(d, q.Type)
}

func matchesSearch(d model.Device, search string) bool {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return true
	}
	for _, field := range []string{d.Name, d.SerialNumber, string(d.Type), d.OSVersion, d.AssignedUser} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func matchesStatus(d model.Device, status string) bool {
	if status == "" || strings.EqualFold(status, FilterAll) {
		return true
	}
	return strings.EqualFold(status, string(d.Status)) || strings.EqualFold(status, d.Status.Wire())
}

func matchesType(d model.Device, typ string) bool {
	if typ == "" || strings.EqualFold(typ, FilterAll) {
		return true
	}
	return strings.EqualFold(typ, string(d.Type))
}

// FilterDevices returns the devices matching q, most recently used first.
func FilterDevices(devices []model.Device, q DeviceQuery) []model.Device {
	out := make([]model.Device, 0, len(devices))
	for _, d := range devices {
		if q.matches(d) {
			out = append(out, d.Clone())
		}
	}
	SortByRecency(out)
	return out
}

// SortByRecency orders devices by last checkout, falling back to purchase
// date, newest first. Ties are broken by id so the order never depends on
// the input order.
func SortByRecency(devices []model.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		ki, kj := devices[i].RecencyKey(), devices[j].RecencyKey()
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return devices[i].ID < devices[j].ID
	})
}

// MobileDevices keeps phones and tablets.
func MobileDevices(devices []model.Device) []model.Device {
	var out []model.Device
	for _, d := range devices {
		if d.Type.IsMobile() {
			out = append(out, d.Clone())
		}
	}
	return out
}

// FilterUsers matches search against name, email, department and username.
func FilterUsers(users []model.User, search string) []model.User {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		if term == "" ||
			strings.Contains(strings.ToLower(u.Name), term) ||
			strings.Contains(strings.ToLower(u.Email), term) ||
			strings.Contains(strings.ToLower(u.Department), term) ||
			strings.Contains(strings.ToLower(u.Username), term) {
			out = append(out, u)
		}
	}
	return out
}

// DevicesForUser returns the devices currently assigned to userID.
func DevicesForUser(devices []model.Device, userID string) []model.Device {
	var out []model.Device
	for _, d := range devices {
		if userID != "" && d.AssignedTo == userID {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Recommended returns the devices worth putting back into rotation.
func Recommended(devices []model.Device) []model.Device {
	var out []model.Device
	for _, d := range devices {
		if d.IsRecommended() {
			out = append(out, d.Clone())
		}
	}
	return out
}
