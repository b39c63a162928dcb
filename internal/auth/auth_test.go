package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bdemetris/devicehub/pkg/database"
	"bdemetris/devicehub/pkg/fixture"
	"bdemetris/devicehub/pkg/model"
)

func newFileManager(t *testing.T, opts ...Option) (*SessionManager, FileStorage) {
	t.Helper()
	storage := FileStorage{Path: filepath.Join(t.TempDir(), "session.json")}
	return NewSessionManager(FixedCredentials(fixture.Credentials()), storage, opts...), storage
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	m, storage := newFileManager(t)

	u, err := m.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
	assert.Empty(t, u.Password)
	assert.True(t, m.IsAuthenticated())
	assert.True(t, m.IsAdmin())

	s, ok, err := storage.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "admin", s.User.Username)
	assert.Empty(t, s.User.Password)
}

func TestLogin_WrongPasswordLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	m, storage := newFileManager(t)

	_, err := m.Login(ctx, "viewer", "viewer123")
	require.NoError(t, err)
	before, err := os.ReadFile(storage.Path)
	require.NoError(t, err)

	_, err = m.Login(ctx, "admin", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	after, err := os.ReadFile(storage.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	u, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "viewer", u.Username)
	assert.False(t, m.IsAdmin())
}

func TestLogin_FailureWithNoSessionStoresNothing(t *testing.T) {
	m, storage := newFileManager(t)

	_, err := m.Login(context.Background(), "admin", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = os.Stat(storage.Path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.IsAuthenticated())

	_, err = m.Login(context.Background(), "nobody", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InactiveUserRejected(t *testing.T) {
	creds := fixture.Credentials()
	creds[2].Status = model.UserInactive
	m := NewSessionManager(FixedCredentials(creds), FileStorage{Path: filepath.Join(t.TempDir(), "s.json")})

	_, err := m.Login(context.Background(), "john.doe", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRestoreAndLogout(t *testing.T) {
	ctx := context.Background()
	m, storage := newFileManager(t)
	_, err := m.Login(ctx, "john.doe", "password123")
	require.NoError(t, err)

	restarted := NewSessionManager(FixedCredentials(fixture.Credentials()), storage)
	require.NoError(t, restarted.Restore(ctx))
	u, ok := restarted.Current()
	require.True(t, ok)
	assert.Equal(t, "John Doe", u.Name)

	require.NoError(t, restarted.Logout(ctx))
	assert.False(t, restarted.IsAuthenticated())
	_, ok, err = storage.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logging out twice is harmless.
	require.NoError(t, restarted.Logout(ctx))
}

func TestRestore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	m, storage := newFileManager(t, WithClock(clock))
	_, err := m.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)

	// Without a TTL the session survives.
	noTTL := NewSessionManager(FixedCredentials(nil), storage, WithClock(clock))
	require.NoError(t, noTTL.Restore(ctx))
	assert.True(t, noTTL.IsAuthenticated())

	withTTL := NewSessionManager(FixedCredentials(nil), storage, WithClock(clock), WithSessionTTL(24*time.Hour))
	require.NoError(t, withTTL.Restore(ctx))
	assert.False(t, withTTL.IsAuthenticated())
	_, ok, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_CorruptSessionIsCleared(t *testing.T) {
	storage := FileStorage{Path: filepath.Join(t.TempDir(), "session.json")}
	require.NoError(t, os.WriteFile(storage.Path, []byte("{not json"), 0o600))

	m := NewSessionManager(FixedCredentials(nil), storage)
	require.NoError(t, m.Restore(context.Background()))
	assert.False(t, m.IsAuthenticated())
	_, err := os.Stat(storage.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreCredentials_Bcrypt(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)

	users := fixture.Users()
	users[3].Password = string(hash)
	st := database.NewMemoryStore(nil, users)
	m := NewSessionManager(StoreCredentials{Users: st}, FileStorage{Path: filepath.Join(t.TempDir(), "s.json")})

	_, err = m.Login(ctx, "jane.smith", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := m.Login(ctx, "jane.smith", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, "4", u.ID)

	_, err = m.Login(ctx, "ghost", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	require.NoError(t, err)
	assert.True(t, passwordMatches(hash, "admin123"))
	assert.False(t, passwordMatches(hash, "admin124"))
	assert.False(t, passwordMatches("", ""))
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	storage := RedisStorage{Client: rdb, TTL: time.Hour}
	m := NewSessionManager(FixedCredentials(fixture.Credentials()), storage)

	_, err := m.Login(ctx, "viewer", "viewer123")
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultSessionKey))
	assert.Equal(t, time.Hour, mr.TTL(DefaultSessionKey))

	restored := NewSessionManager(FixedCredentials(nil), storage)
	require.NoError(t, restored.Restore(ctx))
	assert.True(t, restored.IsAuthenticated())

	mr.FastForward(2 * time.Hour)
	expired := NewSessionManager(FixedCredentials(nil), storage)
	require.NoError(t, expired.Restore(ctx))
	assert.False(t, expired.IsAuthenticated())

	require.NoError(t, m.Logout(ctx))
	assert.False(t, mr.Exists(DefaultSessionKey))
}

func TestRestore_RedisOutageKeepsSession(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	storage := RedisStorage{Client: rdb}

	_, err := NewSessionManager(FixedCredentials(fixture.Credentials()), storage).Login(ctx, "viewer", "viewer123")
	require.NoError(t, err)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	m := NewSessionManager(FixedCredentials(nil), storage)
	err = m.Restore(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptSession)
	assert.False(t, m.IsAuthenticated())

	mr.SetError("")
	assert.True(t, mr.Exists(DefaultSessionKey))
	require.NoError(t, m.Restore(ctx))
	assert.True(t, m.IsAuthenticated())
}

func TestRestore_CorruptRedisSessionIsCleared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, mr.Set(DefaultSessionKey, "{not json"))

	storage := RedisStorage{Client: rdb}
	_, _, err := storage.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptSession)

	m := NewSessionManager(FixedCredentials(nil), storage)
	require.NoError(t, m.Restore(ctx))
	assert.False(t, m.IsAuthenticated())
	assert.False(t, mr.Exists(DefaultSessionKey))
}
