package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

// errUnknownUser is returned by a CredentialSource that has no such user.
var errUnknownUser = errors.New("unknown user")

// CredentialSource looks up the account a username signs in as.
type CredentialSource interface {
	Lookup(ctx context.Context, username string) (model.User, error)
}

// FixedCredentials is an in-process credential list.
type FixedCredentials []model.User

func (f FixedCredentials) Lookup(_ context.Context, username string) (model.User, error) {
	for _, u := range f {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, errUnknownUser
}

// StoreCredentials reads accounts from a user store.
type StoreCredentials struct {
	Users store.UserStore
}

func (s StoreCredentials) Lookup(ctx context.Context, username string) (model.User, error) {
	u, err := s.Users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, errUnknownUser
	}
	if err != nil {
		return model.User{}, fmt.Errorf("looking up %s: %w", username, err)
	}
	return u, nil
}

// passwordMatches accepts bcrypt hashes and, for the legacy lists,
// plaintext passwords.
func passwordMatches(stored, given string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// HashPassword returns a bcrypt hash suitable for a stored user record.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
