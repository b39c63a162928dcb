package store

import (
	"fmt"
	"time"

	"bdemetris/devicehub/pkg/model"
)

// Device attribute names accepted by DeviceStore.UpdateDevice. They match
// the dynamodbav tags on model.Device.
const (
	FieldName         = "Name"
	FieldType         = "DeviceType"
	FieldSerialNumber = "SerialNumber"
	FieldOSVersion    = "OSVersion"
	FieldStatus       = "Status"
	FieldAssignedTo   = "AssignedTo"
	FieldAssignedUser = "AssignedUser"
	FieldLastCheckout = "LastCheckout"
	FieldLastCheckin  = "LastCheckin"
	FieldLocation     = "Location"
	FieldPurchaseDate = "PurchaseDate"
	FieldNotes        = "Notes"
	FieldUsageCount   = "UsageCount"
	FieldConnectivity = "Connectivity"
	FieldUpdatedAt    = "UpdatedAt"
)

// ApplyDeviceUpdates writes updates into d. Backends without partial
// update support use it for read-modify-write.
func ApplyDeviceUpdates(d *model.Device, updates map[string]any) error {
	for key, value := range updates {
		var err error
		switch key {
		case FieldName:
			d.Name, err = asString(key, value)
		case FieldType:
			var s string
			s, err = asString(key, value)
			d.Type = model.DeviceType(s)
		case FieldSerialNumber:
			d.SerialNumber, err = asString(key, value)
		case FieldOSVersion:
			d.OSVersion, err = asString(key, value)
		case FieldStatus:
			var s string
			s, err = asString(key, value)
			d.Status = model.DeviceStatus(s)
		case FieldAssignedTo:
			d.AssignedTo, err = asString(key, value)
		case FieldAssignedUser:
			d.AssignedUser, err = asString(key, value)
		case FieldLastCheckout:
			d.LastCheckout, err = asTime(key, value)
		case FieldLastCheckin:
			d.LastCheckin, err = asTime(key, value)
		case FieldLocation:
			d.Location, err = asString(key, value)
		case FieldPurchaseDate:
			d.PurchaseDate, err = asString(key, value)
		case FieldNotes:
			d.Notes, err = asString(key, value)
		case FieldConnectivity:
			d.Connectivity, err = asString(key, value)
		case FieldUsageCount:
			n, ok := value.(int)
			if !ok {
				err = fmt.Errorf("field %s: expected int, got %T", key, value)
			}
			d.UsageCount = n
		case FieldUpdatedAt:
			var t *time.Time
			t, err = asTime(key, value)
			if t != nil {
				d.UpdatedAt = *t
			}
		default:
			err = fmt.Errorf("unknown device field %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asString(key string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case model.DeviceStatus:
		return string(v), nil
	case model.DeviceType:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("field %s: expected string, got %T", key, value)
}

func asTime(key string, value any) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		t := *v
		return &t, nil
	}
	return nil, fmt.Errorf("field %s: expected time, got %T", key, value)
}
