package model

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied when the API omits dashboard-only fields.
const (
	DefaultLocation     = "Building A - Floor 2"
	DefaultConnectivity = "WiFi"
)

// APIDevice is the device representation exchanged with the inventory API.
type APIDevice struct {
	ID           string `json:"id"`
	DeviceType   string `json:"device_type"`
	Connectivity string `json:"connectivity"`
	SerialNumber string `json:"serial_number"`
	OSVersion    string `json:"os_version"`
	AssignedUser string `json:"assigned_user"`
	Status       string `json:"status"`
	UsageCount   int    `json:"usage_count"`
	CheckOutDate string `json:"check_out_date"`
	CheckInDate  string `json:"check_in_date,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	LastUpdated  string `json:"last_updated,omitempty"`
	Name         string `json:"name,omitempty"`
	Location     string `json:"location,omitempty"`
	PurchaseDate string `json:"purchase_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// APIUser is the user representation exchanged with the inventory API.
// The API never carries credentials.
type APIUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	JoinDate   string `json:"join_date,omitempty"`
}

// APIHistory is a history record as returned by GET /history/{id}.
type APIHistory struct {
	ID        string `json:"id"`
	DeviceID  string `json:"device_id"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTimestamp reads the timestamp formats the API has been seen to emit.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil
	}
	return &t
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// DeviceFromAPI converts an API record into a Device. Fields the API does
// not know about are derived the way the dashboard always has.
func DeviceFromAPI(a APIDevice) Device {
	d := Device{
		ID:           a.ID,
		Name:         a.Name,
		Type:         DeviceType(a.DeviceType),
		SerialNumber: a.SerialNumber,
		OSVersion:    a.OSVersion,
		Status:       DeviceStatus(a.Status),
		AssignedTo:   a.AssignedUser,
		AssignedUser: a.AssignedUser,
		LastCheckout: optionalTime(a.CheckOutDate),
		LastCheckin:  optionalTime(a.CheckInDate),
		Location:     a.Location,
		PurchaseDate: a.PurchaseDate,
		Notes:        a.Notes,
		UsageCount:   a.UsageCount,
		Connectivity: a.Connectivity,
	}
	if t, err := ParseDeviceType(a.DeviceType); err == nil {
		d.Type = t
	}
	if s, err := ParseDeviceStatus(a.Status); err == nil {
		d.Status = s
	}
	if created := optionalTime(a.CreatedAt); created != nil {
		d.CreatedAt = *created
	}
	if updated := optionalTime(a.LastUpdated); updated != nil {
		d.UpdatedAt = *updated
	}
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s - %s", a.DeviceType, a.SerialNumber)
	}
	if d.Location == "" {
		d.Location = DefaultLocation
	}
	if d.PurchaseDate == "" && a.CreatedAt != "" {
		d.PurchaseDate, _, _ = strings.Cut(a.CreatedAt, "T")
	}
	if d.Notes == "" {
		d.Notes = fmt.Sprintf("Usage count: %d", a.UsageCount)
	}
	d.Normalize()
	return d
}

// DeviceToAPI converts a Device into its API form.
func DeviceToAPI(d Device) APIDevice {
	connectivity := d.Connectivity
	if connectivity == "" {
		connectivity = DefaultConnectivity
	}
	a := APIDevice{
		ID:           d.ID,
		DeviceType:   string(d.Type),
		Connectivity: connectivity,
		SerialNumber: d.SerialNumber,
		OSVersion:    d.OSVersion,
		AssignedUser: d.AssignedUser,
		Status:       d.Status.Wire(),
		UsageCount:   d.UsageCount,
		CheckOutDate: formatOptional(d.LastCheckout),
		CheckInDate:  formatOptional(d.LastCheckin),
		Name:         d.Name,
		Location:     d.Location,
		PurchaseDate: d.PurchaseDate,
		Notes:        d.Notes,
	}
	if !d.CreatedAt.IsZero() {
		a.CreatedAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !d.UpdatedAt.IsZero() {
		a.LastUpdated = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return a
}

// UserFromAPI converts an API user. The username is the local part of the
// email and the password is left empty.
func UserFromAPI(a APIUser) User {
	username, _, _ := strings.Cut(a.Email, "@")
	return User{
		ID:         a.ID,
		Username:   username,
		Name:       a.Name,
		Email:      a.Email,
		Department: a.Department,
		Role:       Role(a.Role),
		Status:     UserStatus(a.Status),
		JoinDate:   a.JoinDate,
	}
}

// UserToAPI converts a User into its API form, dropping credentials.
func UserToAPI(u User) APIUser {
	return APIUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Department: u.Department,
		Role:       string(u.Role),
		Status:     string(u.Status),
		JoinDate:   u.JoinDate,
	}
}

// HistoryFromAPI converts an API history record.
func HistoryFromAPI(a APIHistory) HistoryEntry {
	h := HistoryEntry{ID: a.ID, DeviceID: a.DeviceID, User: a.User, Action: a.Action}
	if t, err := ParseTimestamp(a.Timestamp); err == nil {
		h.Timestamp = t
	}
	return h
}

// HistoryToAPI converts a history entry into its API form.
func HistoryToAPI(h HistoryEntry) APIHistory {
	return APIHistory{
		ID:        h.ID,
		DeviceID:  h.DeviceID,
		User:      h.User,
		Action:    h.Action,
		Timestamp: h.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
