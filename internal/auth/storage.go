package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"bdemetris/devicehub/pkg/model"
)

// ErrCorruptSession means a stored session exists but cannot be decoded.
var ErrCorruptSession = errors.New("corrupt session")

// Session is what survives a restart: the signed-in user, without
// credentials, and when it was saved.
type Session struct {
	User    model.User `json:"user"`
	SavedAt time.Time  `json:"savedAt"`
}

// SessionStorage persists at most one session.
type SessionStorage interface {
	// Load returns false when nothing is stored.
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// FileStorage keeps the session in a JSON file readable only by its owner.
type FileStorage struct {
	Path string
}

// DefaultSessionPath is ~/.config/devicehub/session.json.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "devicehub", "session.json")
}

func (f FileStorage) Load(_ context.Context) (Session, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptSession, f.Path, err)
	}
	return s, true, nil
}

func (f FileStorage) Save(_ context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileStorage) Clear(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// DefaultSessionKey is the Redis key RedisStorage uses unless told otherwise.
const DefaultSessionKey = "devicehub:session"

// RedisStorage keeps the session under one Redis key. A non-zero TTL lets
// Redis expire it.
type RedisStorage struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func (r RedisStorage) key() string {
	if r.Key == "" {
		return DefaultSessionKey
	}
	return r.Key
}

func (r RedisStorage) Load(ctx context.Context) (Session, bool, error) {
	data, err := r.Client.Get(ctx, r.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session from redis: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("%w: redis key %s: %v", ErrCorruptSession, r.key(), err)
	}
	return s, true, nil
}

func (r RedisStorage) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.key(), data, r.TTL).Err()
}

func (r RedisStorage) Clear(ctx context.Context) error {
	return r.Client.Del(ctx, r.key()).Err()
}
