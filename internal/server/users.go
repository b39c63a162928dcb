package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.storeError(w, r, "User not found", err)
		return
	}
	out := make([]model.APIUser, 0, len(users))
	for _, u := range users {
		out = append(out, model.UserToAPI(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in model.APIUser
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	required := []struct{ name, value string }{
		{"name", in.Name},
		{"email", in.Email},
		{"department", in.Department},
		{"role", in.Role},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			writeError(w, http.StatusBadRequest, "Missing required field: "+f.name)
			return
		}
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := model.UserActive
	if in.Status != "" {
		if status, err = model.ParseUserStatus(in.Status); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	_, err = s.store.GetUserByEmail(r.Context(), in.Email)
	switch {
	case err == nil:
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	case !errors.Is(err, store.ErrNotFound):
		s.storeError(w, r, "User not found", err)
		return
	}

	u := model.UserFromAPI(in)
	u.ID = s.newID()
	u.Role = role
	u.Status = status
	u.JoinDate = s.now().UTC().Format(model.DateLayout)
	if err := s.store.PutUser(r.Context(), u); err != nil {
		s.storeError(w, r, "User not found", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.UserToAPI(u))
}

func (s *Server) deviceHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, r, deviceNotFound, err)
		return
	}
	out := make([]model.APIHistory, 0, len(entries))
	for _, h := range entries {
		out = append(out, model.HistoryToAPI(h))
	}
	writeJSON(w, http.StatusOK, out)
}

// appendHistory records an action. Failures are logged, not returned; the
// device change has already been stored.
func (s *Server) appendHistory(r *http.Request, deviceID, user, action string) {
	entry := model.HistoryEntry{
		ID:        s.newID(),
		DeviceID:  deviceID,
		User:      user,
		Action:    action,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AppendHistory(r.Context(), entry); err != nil {
		s.logger.Error("appending history", "device", deviceID, "action", action, "error", err)
	}
}
