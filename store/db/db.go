// Package db selects the storage engine described by the profile.
package db

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hrygo/civicsense/internal/profile"
	"github.com/hrygo/civicsense/store"
	"github.com/hrygo/civicsense/store/db/postgres"
	"github.com/hrygo/civicsense/store/db/sqlite"
)

// Driver extends the raw key-value boundary with schema migration.
type Driver interface {
	store.Driver
	Migrate(ctx context.Context) error
}

// NewDBDriver creates the engine named by profile.Driver.
func NewDBDriver(p *profile.Profile) (Driver, error) {
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(p.Data, "civicsense.db")
		}
		return sqlite.NewDB(p)
	case "postgres":
		return postgres.NewDB(p)
	case "memory":
		return memoryDriver{store.NewMemoryDriver()}, nil
	}
	return nil, errors.Errorf("unknown db driver %q", p.Driver)
}

// memoryDriver adapts the in-memory engine, which has no schema.
type memoryDriver struct {
	store.Driver
}

func (memoryDriver) Migrate(context.Context) error { return nil }
