package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bdemetris/devicehub/pkg/model"
	"bdemetris/devicehub/pkg/store"
)

// PostgresStore implements store.Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	device_type   TEXT NOT NULL DEFAULT '',
	serial_number TEXT NOT NULL DEFAULT '',
	os_version    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	assigned_to   TEXT NOT NULL DEFAULT '',
	assigned_user TEXT NOT NULL DEFAULT '',
	last_checkout TIMESTAMPTZ,
	last_checkin  TIMESTAMPTZ,
	location      TEXT NOT NULL DEFAULT '',
	purchase_date TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	usage_count   INTEGER NOT NULL DEFAULT 0,
	connectivity  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	join_date  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS device_history (
	id        TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	actor     TEXT NOT NULL DEFAULT '',
	action    TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS device_history_device_idx ON device_history (device_id, ts DESC);
`

// NewPostgresStore connects to PostgreSQL and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (store.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	s, err := NewPostgresStoreFromPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool and migrates the schema.
func NewPostgresStoreFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const deviceColumns = `id, name, device_type, serial_number, os_version, status, assigned_to,
	assigned_user, last_checkout, last_checkin, location, purchase_date, notes, usage_count,
	connectivity, created_at, updated_at`

func scanDevice(row pgx.Row) (model.Device, error) {
	var d model.Device
	var typ, status string
	err := row.Scan(&d.ID, &d.Name, &typ, &d.SerialNumber, &d.OSVersion, &status, &d.AssignedTo,
		&d.AssignedUser, &d.LastCheckout, &d.LastCheckin, &d.Location, &d.PurchaseDate, &d.Notes,
		&d.UsageCount, &d.Connectivity, &d.CreatedAt, &d.UpdatedAt)
	d.Type = model.DeviceType(typ)
	d.Status = model.DeviceStatus(status)
	return d, err
}

func (s *PostgresStore) PutDevice(ctx context.Context, d model.Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, device_type=EXCLUDED.device_type,
			serial_number=EXCLUDED.serial_number, os_version=EXCLUDED.os_version,
			status=EXCLUDED.status, assigned_to=EXCLUDED.assigned_to,
			assigned_user=EXCLUDED.assigned_user, last_checkout=EXCLUDED.last_checkout,
			last_checkin=EXCLUDED.last_checkin, location=EXCLUDED.location,
			purchase_date=EXCLUDED.purchase_date, notes=EXCLUDED.notes,
			usage_count=EXCLUDED.usage_count, connectivity=EXCLUDED.connectivity,
			updated_at=EXCLUDED.updated_at`,
		d.ID, d.Name, string(d.Type), d.SerialNumber, d.OSVersion, string(d.Status), d.AssignedTo,
		d.AssignedUser, d.LastCheckout, d.LastCheckin, d.Location, d.PurchaseDate, d.Notes,
		d.UsageCount, d.Connectivity, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (model.Device, error) {
	d, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateDevice locks the row, applies the updates and writes it back in
// one transaction.
func (s *PostgresStore) UpdateDevice(ctx context.Context, deviceID string, updates map[string]any) (model.Device, error) {
	if len(updates) == 0 {
		return model.Device{}, fmt.Errorf("no update parameters provided for device ID %s", deviceID)
	}

	var updated model.Device
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := scanDevice(tx.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1 FOR UPDATE`, deviceID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get device: %w", err)
		}
		if err := store.ApplyDeviceUpdates(&d, updates); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE devices SET name=$2, device_type=$3, serial_number=$4, os_version=$5, status=$6,
				assigned_to=$7, assigned_user=$8, last_checkout=$9, last_checkin=$10, location=$11,
				purchase_date=$12, notes=$13, usage_count=$14, connectivity=$15, updated_at=$16
			WHERE id=$1`,
			d.ID, d.Name, string(d.Type), d.SerialNumber, d.OSVersion, string(d.Status),
			d.AssignedTo, d.AssignedUser, d.LastCheckout, d.LastCheckin, d.Location,
			d.PurchaseDate, d.Notes, d.UsageCount, d.Connectivity, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update device: %w", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return model.Device{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteDevice(ctx context.Context, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
	}
	return nil
}

const userColumns = `id, username, password, name, email, department, role, status, join_date`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role, status string
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Email, &u.Department, &role, &status, &u.JoinDate)
	u.Role = model.Role(role)
	u.Status = model.UserStatus(status)
	return u, err
}

func (s *PostgresStore) PutUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			username=EXCLUDED.username, password=EXCLUDED.password, name=EXCLUDED.name,
			email=EXCLUDED.email, department=EXCLUDED.department, role=EXCLUDED.role,
			status=EXCLUDED.status, join_date=EXCLUDED.join_date`,
		u.ID, u.Username, u.Password, u.Name, u.Email, u.Department, string(u.Role), string(u.Status), u.JoinDate)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: user %s", store.ErrDuplicate, u.ID)
		}
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) userBy(ctx context.Context, where, arg string) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.userBy(ctx, "id = $1", userID)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return s.userBy(ctx, "username = $1", username)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.userBy(ctx, "lower(email) = lower($1)", email)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY join_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID string, patch model.UserPatch) (model.User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	patch.Apply(&u)
	if err := s.PutUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, h model.HistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO device_history (id, device_id, actor, action, ts) VALUES ($1,$2,$3,$4,$5)`,
		h.ID, h.DeviceID, h.User, h.Action, h.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, deviceID string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, device_id, actor, action, ts FROM device_history WHERE device_id = $1 ORDER BY ts DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var h model.HistoryEntry
		if err := rows.Scan(&h.ID, &h.DeviceID, &h.User, &h.Action, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func isDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
