// Package sqlite implements the store.Driver boundary on SQLite.
// SQLite is the default engine for single-instance deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/civicsense/internal/profile"
	"github.com/hrygo/civicsense/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database described by the profile DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode prevents most locking issues; a busy timeout covers
	// the rest. With modernc.org/sqlite each pragma must be `_pragma=`-prefixed.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "open db with dsn %q", profile.DSN)
	}

	// SQLite with WAL performs best on a single write connection.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

// Migrate creates the key-value schema.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS civic_kv (
			partition TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_ts BIGINT NOT NULL,
			PRIMARY KEY (partition, key)
		)`)
	return errors.Wrap(err, "migrate civic_kv")
}

func (d *DB) Get(ctx context.Context, partition, key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM civic_kv WHERE partition = ? AND key = ?`,
		partition, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", partition, key)
	}
	return value, nil
}

func (d *DB) Put(ctx context.Context, partition, key string, value []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO civic_kv (partition, key, value, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (partition, key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		partition, key, value, time.Now().UnixMilli(),
	)
	return errors.Wrapf(err, "put %s/%s", partition, key)
}

func (d *DB) Query(ctx context.Context, partition, filter string) ([][]byte, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT value FROM civic_kv WHERE partition = ? ORDER BY updated_ts DESC`,
		partition,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query partition %s", partition)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, errors.Wrap(err, "scan value")
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return store.ApplyFilter(filter, values)
}

func (d *DB) Close() error {
	return d.db.Close()
}
