// Package postgres implements the store.Driver boundary on PostgreSQL,
// the recommended engine for multi-instance deployments.
package postgres

import (
	"context"
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/civicsense/internal/profile"
	"github.com/hrygo/civicsense/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool from the profile DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open db with dsn %q", profile.DSN)
	}

	pgDB.SetMaxOpenConns(25)
	pgDB.SetMaxIdleConns(5)
	pgDB.SetConnMaxLifetime(30 * time.Minute)

	return &DB{db: pgDB, profile: profile}, nil
}

// DB exposes the underlying pool for collaborators that share the
// connection, such as the pgvector knowledge source.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Migrate creates the key-value schema.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS civic_kv (
			partition TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL,
			updated_ts BIGINT NOT NULL,
			PRIMARY KEY (partition, key)
		)`)
	return errors.Wrap(err, "migrate civic_kv")
}

func (d *DB) Get(ctx context.Context, partition, key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM civic_kv WHERE partition = $1 AND key = $2`,
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition, key) DO UPDATE SET value = EXCLUDED.value, updated_ts = EXCLUDED.updated_ts`,
		partition, key, value, time.Now().UnixMilli(),
	)
	return errors.Wrapf(err, "put %s/%s", partition, key)
}

func (d *DB) Query(ctx context.Context, partition, filter string) ([][]byte, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT value FROM civic_kv WHERE partition = $1 ORDER BY updated_ts DESC`,
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
