package storage

import (
	"context"
	"fmt"
)

// Config selects the record store backend and, optionally, the archive.
type Config struct {
	// Driver is the record store backend: memory, sqlite, or postgres.
	Driver string `toml:"driver"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `toml:"sqlite_path"`

	Postgres PostgresConfig `toml:"postgres"`

	// Archive enables the ClickHouse record history.
	Archive    bool             `toml:"archive"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
}

// DefaultConfig returns local development settings.
func DefaultConfig() Config {
	return Config{
		Driver:     "sqlite",
		SQLitePath: "fisb.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "fisb",
			User:     "fisb",
			Password: "fisb",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "fisb",
			User:     "default",
			Password: "",
		},
	}
}

// Open opens the configured record store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
