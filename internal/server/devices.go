package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

const deviceNotFound = "Device not found"

func toAPI(devices []model.Device) []model.APIDevice {
	out := make([]model.APIDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, model.DeviceToAPI(d))
	}
	return out
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPI(devices))
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDevice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DeviceToAPI(d))
}

// searchDevices matches q against type, serial, assignee, OS version and
// name. An empty q returns nothing.
func (s *Server) searchDevices(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeJSON(w, http.StatusOK, []model.APIDevice{})
		return
	}
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	var matched []model.Device
	for _, d := range devices {
		for _, field := range []string{string(d.Type), d.SerialNumber, d.AssignedUser, d.OSVersion, d.Name} {
			if strings.Contains(strings.ToLower(field), q) {
				matched = append(matched, d)
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, toAPI(matched))
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	var picked []model.Device
	for _, d := range devices {
		if d.IsRecommended() {
			picked = append(picked, d)
		}
	}
	writeJSON(w, http.StatusOK, toAPI(picked))
}

// serialTaken reports whether another device already uses serial.
func (s *Server) serialTaken(r *http.Request, serial, exceptID string) (bool, error) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		return false, err
	}
	for _, d := range devices {
		if d.ID != exceptID && d.SerialNumber == serial {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var in model.APIDevice
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	required := []struct{ name, value string }{
		{"device_type", in.DeviceType},
		{"connectivity", in.Connectivity},
		{"serial_number", in.SerialNumber},
		{"os_version", in.OSVersion},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			writeError(w, http.StatusBadRequest, "Missing required field: "+f.name)
			return
		}
	}
	if in.Status == "" {
		in.Status = model.StatusAvailable.Wire()
	}
	if _, err := model.ParseDeviceStatus(in.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taken, err := s.serialTaken(r, in.SerialNumber, "")
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	if taken {
		writeError(w, http.StatusBadRequest, "Serial number already exists")
		return
	}

	now := s.now().UTC()
	in.ID = s.newID()
	in.CreatedAt, in.LastUpdated = "", ""
	d := model.DeviceFromAPI(in)
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == model.StatusCheckedOut && !d.IsAssigned() {
		writeError(w, http.StatusBadRequest, "Checked out devices need an assigned_user")
		return
	}
	if in.PurchaseDate == "" {
		d.PurchaseDate = now.Format(model.DateLayout)
	}
	// The derived "Usage count" note is display-only and not stored.
	d.Notes = in.Notes

	if err := s.store.PutDevice(r.Context(), d); err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	s.appendHistory(r, d.ID, "system", model.ActionCreated)
	writeJSON(w, http.StatusCreated, model.DeviceToAPI(d))
}

// deviceUpdates translates an API body into store field updates. Unknown
// keys, id and created_at are ignored.
func deviceUpdates(body map[string]any) (map[string]any, error) {
	updates := map[string]any{}
	for key, raw := range body {
		switch key {
		case "device_type", "connectivity", "serial_number", "os_version", "assigned_user",
			"status", "name", "location", "purchase_date", "notes", "check_out_date", "check_in_date":
			value, ok := raw.(string)
			if !ok && raw != nil {
				return nil, fmt.Errorf("%s must be a string", key)
			}
			switch key {
			case "device_type":
				typ, err := model.ParseDeviceType(value)
				if err != nil {
					return nil, err
				}
				updates[store.FieldType] = typ
			case "connectivity":
				updates[store.FieldConnectivity] = value
			case "serial_number":
				updates[store.FieldSerialNumber] = value
			case "os_version":
				updates[store.FieldOSVersion] = value
			case "assigned_user":
				updates[store.FieldAssignedTo] = value
				updates[store.FieldAssignedUser] = value
			case "status":
				status, err := model.ParseDeviceStatus(value)
				if err != nil {
					return nil, err
				}
				updates[store.FieldStatus] = status
			case "name":
				updates[store.FieldName] = value
			case "location":
				updates[store.FieldLocation] = value
			case "purchase_date":
				updates[store.FieldPurchaseDate] = value
			case "notes":
				updates[store.FieldNotes] = value
			case "check_out_date", "check_in_date":
				field := store.FieldLastCheckout
				if key == "check_in_date" {
					field = store.FieldLastCheckin
				}
				if value == "" {
					updates[field] = nil
					continue
				}
				t, err := model.ParseTimestamp(value)
				if err != nil {
					return nil, err
				}
				updates[field] = t
			}
		case "usage_count":
			n, ok := raw.(float64)
			if !ok || n < 0 {
				return nil, fmt.Errorf("usage_count must be a non-negative number")
			}
			updates[store.FieldUsageCount] = int(n)
		}
	}
	return updates, nil
}

func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	current, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}

	updates, err := deviceUpdates(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if serial, ok := updates[store.FieldSerialNumber].(string); ok {
		taken, err := s.serialTaken(r, serial, id)
		if err != nil {
			s.storeError(w, r, deviceNotFound, err)
			return
		}
		if taken {
			writeError(w, http.StatusBadRequest, "Serial number already exists")
			return
		}
	}

	// A device is checked out exactly when it has an assignee.
	status := current.Status
	if s, ok := updates[store.FieldStatus].(model.DeviceStatus); ok {
		status = s
	}
	assignee := current.AssignedTo
	if a, ok := updates[store.FieldAssignedTo].(string); ok {
		assignee = a
	}
	if status == model.StatusCheckedOut {
		if strings.TrimSpace(assignee) == "" {
			writeError(w, http.StatusBadRequest, "Use checkout to assign a device")
			return
		}
	} else {
		updates[store.FieldAssignedTo] = ""
		updates[store.FieldAssignedUser] = ""
	}
	updates[store.FieldUpdatedAt] = s.now().UTC()

	d, err := s.store.UpdateDevice(r.Context(), id, updates)
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}

	actor := "system"
	if by, ok := body["updated_by"].(string); ok && by != "" {
		actor = by
	}
	s.appendHistory(r, id, actor, model.ActionUpdated)
	writeJSON(w, http.StatusOK, model.DeviceToAPI(d))
}

func (s *Server) checkoutDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.User) == "" {
		writeError(w, http.StatusBadRequest, "User is required for checkout")
		return
	}

	current, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	if current.Status != model.StatusAvailable {
		writeError(w, http.StatusBadRequest, "Device is not available for checkout")
		return
	}

	now := s.now().UTC()
	d, err := s.store.UpdateDevice(r.Context(), id, map[string]any{
		store.FieldAssignedTo:   body.User,
		store.FieldAssignedUser: body.User,
		store.FieldStatus:       model.StatusCheckedOut,
		store.FieldLastCheckout: now,
		store.FieldUsageCount:   current.UsageCount + 1,
		store.FieldUpdatedAt:    now,
	})
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	s.appendHistory(r, id, body.User, model.ActionCheckedOut)
	writeJSON(w, http.StatusOK, model.DeviceToAPI(d))
}

// checkinDevice clears the assignment and the checkout date and stamps the
// checkin time.
func (s *Server) checkinDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	current, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	if current.Status != model.StatusCheckedOut {
		writeError(w, http.StatusBadRequest, "Device is not checked out")
		return
	}

	now := s.now().UTC()
	d, err := s.store.UpdateDevice(r.Context(), id, map[string]any{
		store.FieldAssignedTo:   "",
		store.FieldAssignedUser: "",
		store.FieldStatus:       model.StatusAvailable,
		store.FieldLastCheckout: nil,
		store.FieldLastCheckin:  now,
		store.FieldUpdatedAt:    now,
	})
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	s.appendHistory(r, id, current.AssignedUser, model.ActionCheckedIn)
	writeJSON(w, http.StatusOK, model.DeviceToAPI(d))
}
