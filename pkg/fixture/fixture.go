// Package fixture holds the built-in seed inventory used when the
// inventory API cannot be reached, and the fixed sign-in list.
package fixture

import (
	"time"

	"bdemetris/devicehub/pkg/model"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// Devices returns a fresh copy of the seed devices.
func Devices() []model.Device {
	return []model.Device{
		{
			ID:           "1",
			Name:         "iPhone 15 Pro",
			Type:         model.TypeIPhone,
			SerialNumber: "A1B2C3D4E5",
			OSVersion:    "iOS 17.2",
			Status:       model.StatusCheckedOut,
			AssignedTo:   "3",
			AssignedUser: "John Doe",
			LastCheckout: at("2024-01-15T10:30:00Z"),
			Location:     "Building A - Floor 2",
			PurchaseDate: "2023-09-15",
			Notes:        "Primary testing device for iOS apps",
		},
		{
			ID:           "2",
			Name:         "Samsung Galaxy S24",
			Type:         model.TypeAndroidPhone,
			SerialNumber: "S24-789XYZ",
			OSVersion:    "Android 14",
			Status:       model.StatusAvailable,
			Location:     "Building A - Floor 2",
			PurchaseDate: "2024-01-10",
			Notes:        "Latest Android device for testing",
		},
		{
			ID:           "3",
			Name:         `iPad Pro 12.9"`,
			Type:         model.TypeIPad,
			SerialNumber: "IPD-456ABC",
			OSVersion:    "iPadOS 17.2",
			Status:       model.StatusMaintenance,
			Location:     "IT Department",
			PurchaseDate: "2023-08-20",
			Notes:        "Screen replacement in progress",
		},
		{
			ID:           "4",
			Name:         "MacBook Pro M3",
			Type:         model.TypeLaptop,
			SerialNumber: "MBP-M3-001",
			OSVersion:    "macOS 14.2",
			Status:       model.StatusAvailable,
			Location:     "Building B - Floor 1",
			PurchaseDate: "2023-11-01",
			Notes:        "Development workstation",
		},
		{
			ID:           "5",
			Name:         "Pixel 8 Pro",
			Type:         model.TypeAndroidPhone,
			SerialNumber: "PX8-PRO-789",
			OSVersion:    "Android 14",
			Status:       model.StatusCheckedOut,
			AssignedTo:   "2",
			AssignedUser: "Viewer User",
			LastCheckout: at("2024-01-12T14:20:00Z"),
			Location:     "Building A - Floor 3",
			PurchaseDate: "2023-10-15",
			Notes:        "Google services testing",
		},
	}
}

// Users returns a fresh copy of the seed team members.
func Users() []model.User {
	return append(Credentials(), model.User{
		ID:         "4",
		Username:   "jane.smith",
		Password:   "password123",
		Name:       "Jane Smith",
		Email:      "jane.smith@company.com",
		Role:       model.RoleViewer,
		Department: "Development",
		Status:     model.UserActive,
	})
}

// Credentials returns the fixed sign-in list.
func Credentials() []model.User {
	return []model.User{
		{
			ID:         "1",
			Username:   "admin",
			Password:   "admin123",
			Name:       "Admin User",
			Email:      "admin@company.com",
			Role:       model.RoleAdmin,
			Department: "IT",
			Status:     model.UserActive,
		},
		{
			ID:         "2",
			Username:   "viewer",
			Password:   "viewer123",
			Name:       "Viewer User",
			Email:      "viewer@company.com",
			Role:       model.RoleViewer,
			Department: "QA",
			Status:     model.UserActive,
		},
		{
			ID:         "3",
			Username:   "john.doe",
			Password:   "password123",
			Name:       "John Doe",
			Email:      "john.doe@company.com",
			Role:       model.RoleViewer,
			Department: "QA",
			Status:     model.UserActive,
		},
	}
}
