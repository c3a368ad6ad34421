// Package store selects and opens the configured ledger backend.
package store

import (
	"errors"
	"fmt"
	"log"

	"github.com/jefferson57-lab/greengrow-manager/config"
	"github.com/jefferson57-lab/greengrow-manager/ledger"
	"github.com/jefferson57-lab/greengrow-manager/store/gormstore"
	"github.com/jefferson57-lab/greengrow-manager/store/sqlite"
)

// Backend is an open ledger store that owns a database handle.
type Backend interface {
	ledger.TxStore
	Close() error
}

// Open opens the backend named by cfg.Driver and applies its schema.
func Open(cfg config.DBConfig) (Backend, error) {
	switch cfg.Driver {
	case "", config.DriverSQLite:
		if cfg.Debug {
			log.Printf("[sqlite] opening %s", cfg.Path)
		}
		return sqlite.New(cfg.Path)
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres driver needs a connection string: set DATABASE_DSN")
		}
		return gormstore.Open(cfg.DSN, gormstore.Config{Debug: cfg.Debug})
	default:
		return nil, fmt.Errorf("unknown database driver %q (want %s or %s)",
			cfg.Driver, config.DriverSQLite, config.DriverPostgres)
	}
}
