package inventory

import (
	"context"
	"fmt"
	"strings"

	"bdemetris/devicehub/pkg/model"
)

// NewUser is the input to AddUser. Username defaults to the local part of
// the email and Status to active.
type NewUser struct {
	Username   string
	Password   string
	Name       string
	Email      string
	Department string
	Role       model.Role
	Status     model.UserStatus
}

func (n NewUser) user() model.User {
	u := model.User{
		Username:   n.Username,
		Password:   n.Password,
		Name:       n.Name,
		Email:      n.Email,
		Department: n.Department,
		Role:       n.Role,
		Status:     n.Status,
	}
	if u.Username == "" {
		u.Username, _, _ = strings.Cut(u.Email, "@")
	}
	if u.Role == "" {
		u.Role = model.RoleViewer
	}
	if u.Status == "" {
		u.Status = model.UserActive
	}
	return u
}

func (n NewUser) validate() error {
	switch {
	case strings.TrimSpace(n.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !strings.Contains(n.Email, "@"):
		return fmt.Errorf("%w: invalid email address %q", ErrInvalidInput, n.Email)
	case strings.TrimSpace(n.Department) == "":
		return fmt.Errorf("%w: department is required", ErrInvalidInput)
	case n.Role != "" && n.Role != model.RoleAdmin && n.Role != model.RoleViewer:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, n.Role)
	}
	return nil
}

// AddUser creates a user through the API. The submitted credentials are
// kept locally since the API does not store them.
func (inv *Inventory) AddUser(ctx context.Context, in NewUser) (UserResult, error) {
	if err := in.validate(); err != nil {
		return UserResult{}, err
	}
	if _, exists := inv.UserByEmail(in.Email); exists {
		return UserResult{}, fmt.Errorf("%w: %s", ErrDuplicateUser, in.Email)
	}
	local := in.user()

	created, err := inv.remote.CreateUser(ctx, model.UserToAPI(local))
	if err != nil {
		if !inv.recordFailure("add user", err) {
			return UserResult{}, fmt.Errorf("adding user: %w", err)
		}
		inv.mu.Lock()
		defer inv.mu.Unlock()
		now := inv.now()
		local.ID = localIDLocked(now, func(id string) bool { return inv.userIndexLocked(id) >= 0 })
		local.JoinDate = now.UTC().Format(model.DateLayout)
		inv.users = append(inv.users, local)
		return UserResult{User: local, Persistence: Degraded, Cause: err}, nil
	}

	u := model.UserFromAPI(created)
	u.Username, u.Password = local.Username, local.Password

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.users = append(inv.users, u)
	return UserResult{User: u, Persistence: Persisted}, nil
}

// UpdateUser merges patch into the local user. The API is not told.
func (inv *Inventory) UpdateUser(id string, patch model.UserPatch) (model.User, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	i := inv.userIndexLocked(id)
	if i < 0 {
		return model.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u := inv.users[i]
	patch.Apply(&u)
	inv.users[i] = u

	// Keep assignee display names in step with the profile.
	if patch.Name != nil {
		for j := range inv.devices {
			if inv.devices[j].AssignedTo == id {
				inv.devices[j].AssignedUser = u.Name
			}
		}
	}
	return u, nil
}

// DeleteUser removes the user locally and returns every device assigned
// to id to Available, even when id names no known user. It reports whether
// a user was removed. The API is not told.
func (inv *Inventory) DeleteUser(id string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for j := range inv.devices {
		if inv.devices[j].AssignedTo == id {
			inv.devices[j].Status = model.StatusAvailable
			inv.devices[j].Normalize()
		}
	}
	i := inv.userIndexLocked(id)
	if i < 0 {
		return false
	}
	inv.users = append(inv.users[:i], inv.users[i+1:]...)
	return true
}
