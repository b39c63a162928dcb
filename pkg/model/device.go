package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DeviceType is the hardware category of a test device.
type DeviceType string

const (
	TypeIPhone        DeviceType = "iPhone"
	TypeIPad          DeviceType = "iPad"
	TypeAndroidPhone  DeviceType = "Android Phone"
	TypeAndroidTablet DeviceType = "Android Tablet"
	TypeLaptop        DeviceType = "Laptop"
	TypeDesktop       DeviceType = "Desktop"
)

// DeviceTypes lists every accepted device type in display order.
var DeviceTypes = []DeviceType{TypeIPhone, TypeIPad, TypeAndroidPhone, TypeAndroidTablet, TypeLaptop, TypeDesktop}

// IsMobile reports whether the type is a phone or a tablet.
func (t DeviceType) IsMobile() bool {
	switch t {
	case TypeIPhone, TypeIPad, TypeAndroidPhone, TypeAndroidTablet:
		return true
	}
	return false
}

// Valid reports whether t is one of DeviceTypes.
func (t DeviceType) Valid() bool {
	for _, known := range DeviceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseDeviceType matches s case-insensitively against the known types.
func ParseDeviceType(s string) (DeviceType, error) {
	for _, known := range DeviceTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

// DeviceStatus is the lifecycle state of a device.
type DeviceStatus string

const (
	StatusAvailable   DeviceStatus = "Available"
	StatusCheckedOut  DeviceStatus = "Checked Out"
	StatusMaintenance DeviceStatus = "Under Maintenance"
	StatusRetired     DeviceStatus = "Retired"
)

// DeviceStatuses lists every status in display order.
var DeviceStatuses = []DeviceStatus{StatusAvailable, StatusCheckedOut, StatusMaintenance, StatusRetired}

var wireStatuses = map[DeviceStatus]string{
	StatusAvailable:   "available",
	StatusCheckedOut:  "checked_out",
	StatusMaintenance: "maintenance",
	StatusRetired:     "retired",
}

// Wire returns the lower-case form the inventory API stores.
func (s DeviceStatus) Wire() string {
	if w, ok := wireStatuses[s]; ok {
		return w
	}
	return strings.ToLower(string(s))
}

// ParseDeviceStatus accepts both display values ("Checked Out") and
// API values ("checked_out").
func ParseDeviceStatus(s string) (DeviceStatus, error) {
	trimmed := strings.TrimSpace(s)
	for status, wire := range wireStatuses {
		if strings.EqualFold(trimmed, string(status)) || strings.EqualFold(trimmed, wire) {
			return status, nil
		}
	}
	if strings.EqualFold(trimmed, "under_maintenance") {
		return StatusMaintenance, nil
	}
	return "", fmt.Errorf("unknown device status %q", s)
}

// Device is the public data model used across the app.
type Device struct {
	ID           string       `json:"id" dynamodbav:"ID"`
	Name         string       `json:"name" dynamodbav:"Name"`
	Type         DeviceType   `json:"type" dynamodbav:"DeviceType"`
	SerialNumber string       `json:"serialNumber" dynamodbav:"SerialNumber"`
	OSVersion    string       `json:"osVersion" dynamodbav:"OSVersion"`
	Status       DeviceStatus `json:"status" dynamodbav:"Status"`
	AssignedTo   string       `json:"assignedTo,omitempty" dynamodbav:"AssignedTo,omitempty"`
	AssignedUser string       `json:"assignedUser,omitempty" dynamodbav:"AssignedUser,omitempty"`
	LastCheckout *time.Time   `json:"lastCheckout,omitempty" dynamodbav:"LastCheckout,omitempty"`
	LastCheckin  *time.Time   `json:"lastCheckin,omitempty" dynamodbav:"LastCheckin,omitempty"`
	Location     string       `json:"location" dynamodbav:"Location"`
	PurchaseDate string       `json:"purchaseDate" dynamodbav:"PurchaseDate"`
	Notes        string       `json:"notes,omitempty" dynamodbav:"Notes,omitempty"`
	UsageCount   int          `json:"usageCount" dynamodbav:"UsageCount"`
	Connectivity string       `json:"connectivity,omitempty" dynamodbav:"Connectivity,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" dynamodbav:"CreatedAt"`
	UpdatedAt    time.Time    `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// IsAssigned reports whether the device is bound to a user.
func (d Device) IsAssigned() bool {
	return d.AssignedTo != ""
}

// Normalize enforces the assignment invariant: a device carries an
// assignment exactly while it is checked out. A checked-out device with
// no assignee is treated as Available.
func (d *Device) Normalize() {
	if d.Status == StatusCheckedOut && d.AssignedTo == "" {
		d.Status = StatusAvailable
	}
	if d.Status != StatusCheckedOut {
		d.AssignedTo = ""
		d.AssignedUser = ""
	}
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	if d.LastCheckout != nil {
		t := *d.LastCheckout
		d.LastCheckout = &t
	}
	if d.LastCheckin != nil {
		t := *d.LastCheckin
		d.LastCheckin = &t
	}
	return d
}

// RecencyKey is the instant listings sort by: the last checkout, falling
// back to the purchase date.
func (d Device) RecencyKey() time.Time {
	if d.LastCheckout != nil {
		return *d.LastCheckout
	}
	if t, err := time.Parse(DateLayout, d.PurchaseDate); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, d.PurchaseDate); err == nil {
		return t
	}
	return time.Time{}
}

// DateLayout is the layout of PurchaseDate.
const DateLayout = "2006-01-02"

// LowUsageThreshold is the usage count under which a device is worth
// putting back into rotation.
const LowUsageThreshold = 5

var staleOSPattern = regexp.MustCompile(`(?i)old|legacy|deprecated`)

// IsRecommended reports whether the device is under-used or runs an OS
// flagged as old.
func (d Device) IsRecommended() bool {
	return d.UsageCount < LowUsageThreshold || staleOSPattern.MatchString(d.OSVersion)
}
