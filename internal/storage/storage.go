// Package storage opens the user, ledger and catalog stores for the
// configured database driver.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sugarscan/sugartrack/internal/catalog"
	catalogpg "github.com/sugarscan/sugartrack/internal/catalog/postgres"
	catalogsqlite "github.com/sugarscan/sugartrack/internal/catalog/sqlite"
	"github.com/sugarscan/sugartrack/internal/config"
	"github.com/sugarscan/sugartrack/internal/ledger"
	ledgerpg "github.com/sugarscan/sugartrack/internal/ledger/postgres"
	ledgersqlite "github.com/sugarscan/sugartrack/internal/ledger/sqlite"
	"github.com/sugarscan/sugartrack/internal/userstore"
	userpg "github.com/sugarscan/sugartrack/internal/userstore/postgres"
	usersqlite "github.com/sugarscan/sugartrack/internal/userstore/sqlite"
)

// Stores bundles the three stores the service runs on.
type Stores struct {
	Users   userstore.Store
	Ledger  ledger.Store
	Catalog catalog.Store
	// Databases maps a health component name to its handle.
	Databases map[string]*sql.DB
}

type dbHandle interface {
	DB() *sql.DB
}

// Open opens every store for cfg.DatabaseDriver. On error, stores opened so
// far are closed.
func Open(cfg config.ServiceConfig) (*Stores, error) {
	s := &Stores{Databases: make(map[string]*sql.DB, 3)}
	switch cfg.DatabaseDriver {
	case config.DriverSQLite, "":
		users, err := usersqlite.New(cfg.IdentityPath)
		if err != nil {
			return nil, fmt.Errorf("open identity store: %w", err)
		}
		s.Users = users
		consumption, err := ledgersqlite.New(cfg.LedgerPath)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		s.Ledger = consumption
		products, err := catalogsqlite.New(cfg.CatalogPath)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open catalog store: %w", err)
		}
		s.Catalog = products
	case config.DriverPostgres:
		dsn := cfg.DatabaseDSN
		maxOpen, maxIdle := cfg.DBMaxOpen, cfg.DBMaxIdle
		lifetime, idle := cfg.DBConnLifetimeMinutes, cfg.DBConnIdleMinutes
		users, err := userpg.New(dsn, maxOpen, maxIdle, lifetime, idle)
		if err != nil {
			return nil, fmt.Errorf("open identity store: %w", err)
		}
		s.Users = users
		consumption, err := ledgerpg.New(dsn, maxOpen, maxIdle, lifetime, idle)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		s.Ledger = consumption
		products, err := catalogpg.New(dsn, maxOpen, maxIdle, lifetime, idle)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open catalog store: %w", err)
		}
		s.Catalog = products
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	for name, store := range map[string]any{"users_db": s.Users, "ledger_db": s.Ledger, "catalog_db": s.Catalog} {
		if h, ok := store.(dbHandle); ok {
			s.Databases[name] = h.DB()
		}
	}
	return s, nil
}

// SeedCatalog loads the YAML fixture at path into the catalog. An empty path
// is a no-op.
func (s *Stores) SeedCatalog(ctx context.Context, path string, logger zerolog.Logger) error {
	if path == "" {
		return nil
	}
	seed, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, s.Catalog); err != nil {
		return fmt.Errorf("apply catalog seed: %w", err)
	}
	logger.Info().Str("file", path).Int("grades", len(seed.Grades)).Int("products", len(seed.Products)).Msg("catalog seeded")
	return nil
}

// Close closes every opened store.
func (s *Stores) Close() error {
	var errs []error
	if s.Catalog != nil {
		errs = append(errs, s.Catalog.Close())
	}
	if s.Ledger != nil {
		errs = append(errs, s.Ledger.Close())
	}
	if s.Users != nil {
		errs = append(errs, s.Users.Close())
	}
	return errors.Join(errs...)
}
