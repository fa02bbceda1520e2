package settings

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// DB is the subset of *pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var (
	_ DB    = (*pgxpool.Pool)(nil)
	_ Store = (*PostgresStore)(nil)
)

// OpenPostgres connects a small pool and verifies it
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database URL")
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return pool, nil
}

const (
	createSettingsTable = `
		CREATE TABLE IF NOT EXISTS autobuy_settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	upsertSettings = `
		INSERT INTO autobuy_settings (key, value, updated_at)
		SELECT k, v, CURRENT_TIMESTAMP FROM unnest($1::text[], $2::text[]) AS t(k, v)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = CURRENT_TIMESTAMP`

	selectSettings = `SELECT key, value FROM autobuy_settings ORDER BY key`
)

// PostgresStore keeps settings as key/value rows so several instances can
// share them
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the settings table if needed
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSettingsTable); err != nil {
		return errors.Wrap(err, "create autobuy_settings")
	}
	return nil
}

// Save upserts every key in one statement
func (s *PostgresStore) Save(ctx context.Context, settings Settings) error {
	values := settings.Values()
	keys := make([]string, 0, len(Keys))
	vals := make([]string, 0, len(Keys))
	for _, k := range Keys {
		keys = append(keys, k)
		vals = append(vals, values[k])
	}

	if _, err := s.db.Exec(ctx, upsertSettings, keys, vals); err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, base Settings) (Settings, error) {
	rows, err := s.db.Query(ctx, selectSettings)
	if err != nil {
		return base, errors.Wrap(err, "failed to load settings")
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return base, errors.Wrap(err, "scan setting")
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return base, errors.Wrap(err, "iterate settings")
	}
	return FromValues(values, base)
}
