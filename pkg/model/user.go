package model

import "fmt"

// Role controls what a user may change.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// UserStatus gates authentication and checkout eligibility.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleViewer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseUserStatus validates a user status string.
func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case UserActive, UserInactive:
		return UserStatus(s), nil
	}
	return "", fmt.Errorf("unknown user status %q", s)
}

// User is a team member who can sign in and hold devices.
// Password is kept as given; the credential check also accepts bcrypt hashes.
type User struct {
	ID         string     `json:"id" dynamodbav:"ID"`
	Username   string     `json:"username" dynamodbav:"Username"`
	Password   string     `json:"password,omitempty" dynamodbav:"Password,omitempty"`
	Name       string     `json:"name" dynamodbav:"Name"`
	Email      string     `json:"email" dynamodbav:"Email"`
	Department string     `json:"department" dynamodbav:"Department"`
	Role       Role       `json:"role" dynamodbav:"Role"`
	Status     UserStatus `json:"status" dynamodbav:"Status"`
	JoinDate   string     `json:"joinDate,omitempty" dynamodbav:"JoinDate,omitempty"`
}

// IsActive reports whether the user may sign in or receive devices.
func (u User) IsActive() bool {
	return u.Status == UserActive
}

// IsAdmin reports whether the user manages inventory and team members.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public returns a copy without the password.
func (u User) Public() User {
	u.Password = ""
	return u
}
