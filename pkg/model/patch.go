package model

// DevicePatch is a partial device update. Nil fields are left unchanged.
// Assignment is not patchable; it only moves through checkout and checkin.
type DevicePatch struct {
	Name         *string       `json:"name,omitempty"`
	Type         *DeviceType   `json:"type,omitempty"`
	SerialNumber *string       `json:"serialNumber,omitempty"`
	OSVersion    *string       `json:"osVersion,omitempty"`
	Status       *DeviceStatus `json:"status,omitempty"`
	Location     *string       `json:"location,omitempty"`
	PurchaseDate *string       `json:"purchaseDate,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p DevicePatch) IsEmpty() bool {
	return p.Name == nil && p.Type == nil && p.SerialNumber == nil && p.OSVersion == nil &&
		p.Status == nil && p.Location == nil && p.PurchaseDate == nil && p.Notes == nil
}

// Apply merges the patch into d and restores the assignment invariant.
func (p DevicePatch) Apply(d *Device) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.SerialNumber != nil {
		d.SerialNumber = *p.SerialNumber
	}
	if p.OSVersion != nil {
		d.OSVersion = *p.OSVersion
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Location != nil {
		d.Location = *p.Location
	}
	if p.PurchaseDate != nil {
		d.PurchaseDate = *p.PurchaseDate
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	d.Normalize()
}

// APIUpdates returns the patch keyed by API field names, ready for
// PUT /devices/{id}.
func (p DevicePatch) APIUpdates() map[string]any {
	updates := map[string]any{}
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Type != nil {
		updates["device_type"] = string(*p.Type)
	}
	if p.SerialNumber != nil {
		updates["serial_number"] = *p.SerialNumber
	}
	if p.OSVersion != nil {
		updates["os_version"] = *p.OSVersion
	}
	if p.Status != nil {
		updates["status"] = p.Status.Wire()
		if *p.Status != StatusCheckedOut {
			updates["assigned_user"] = ""
		}
	}
	if p.Location != nil {
		updates["location"] = *p.Location
	}
	if p.PurchaseDate != nil {
		updates["purchase_date"] = *p.PurchaseDate
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	return updates
}

// UserPatch is a partial user update. Nil fields are left unchanged.
type UserPatch struct {
	Username   *string     `json:"username,omitempty"`
	Password   *string     `json:"password,omitempty"`
	Name       *string     `json:"name,omitempty"`
	Email      *string     `json:"email,omitempty"`
	Department *string     `json:"department,omitempty"`
	Role       *Role       `json:"role,omitempty"`
	Status     *UserStatus `json:"status,omitempty"`
}

// Apply merges the patch into u.
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
