// Package auth holds the signed-in user and checks credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bdemetris/devicehub/pkg/model"
)

// ErrInvalidCredentials covers unknown users, wrong passwords and inactive
// accounts alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// SessionManager is the session holder. It is safe for concurrent use.
type SessionManager struct {
	credentials CredentialSource
	storage     SessionStorage
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu   sync.RWMutex
	user *model.User
}

type Option func(*SessionManager)

// WithSessionTTL makes Restore discard sessions older than ttl. Without it
// a stored session never expires.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *SessionManager) { m.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *SessionManager) { m.logger = logger }
}

func NewSessionManager(credentials CredentialSource, storage SessionStorage, opts ...Option) *SessionManager {
	m := &SessionManager{
		credentials: credentials,
		storage:     storage,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore adopts the stored session, if any. A corrupt or expired session
// is cleared and leaves the manager signed out. Other storage errors are
// returned and the stored session is kept.
func (m *SessionManager) Restore(ctx context.Context) error {
	s, ok, err := m.storage.Load(ctx)
	if errors.Is(err, ErrCorruptSession) {
		m.logger.Warn("discarding unreadable session", "error", err)
		return m.storage.Clear(ctx)
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return nil
	}
	if m.ttl > 0 && m.now().Sub(s.SavedAt) > m.ttl {
		m.logger.Info("stored session expired", "user", s.User.Username, "savedAt", s.SavedAt)
		return m.storage.Clear(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u := s.User
	m.user = &u
	return nil
}

// Login signs in when username and password match an active account and
// persists the session. On failure nothing changes, in memory or in storage.
func (m *SessionManager) Login(ctx context.Context, username, password string) (model.User, error) {
	u, err := m.credentials.Lookup(ctx, username)
	if errors.Is(err, errUnknownUser) {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if !passwordMatches(u.Password, password) || !u.IsActive() {
		return model.User{}, ErrInvalidCredentials
	}

	public := u.Public()
	if err := m.storage.Save(ctx, Session{User: public, SavedAt: m.now().UTC()}); err != nil {
		return model.User{}, fmt.Errorf("saving session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &public
	m.logger.Info("signed in", "user", public.Username, "role", public.Role)
	return public, nil
}

// Logout clears the session in memory and in storage.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
	return m.storage.Clear(ctx)
}

// Current returns the signed-in user.
func (m *SessionManager) Current() (model.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return model.User{}, false
	}
	return *m.user, true
}

func (m *SessionManager) IsAuthenticated() bool {
	_, ok := m.Current()
	return ok
}

func (m *SessionManager) IsAdmin() bool {
	u, ok := m.Current()
	return ok && u.IsAdmin()
}
