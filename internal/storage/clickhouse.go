package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fisb_decode/internal/products"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Archive is an append-only record history in ClickHouse. The record store
// holds only current state; the archive keeps every record that cleared
// dedup, for replay and analysis. Imagery bins are skipped since they
// arrive per-block and dwarf everything else.
type Archive struct {
	conn driver.Conn
}

// OpenArchive opens a connection to ClickHouse and creates the schema.
func OpenArchive(ctx context.Context, cfg ClickHouseConfig) (*Archive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	a := &Archive{conn: conn}
	if err := a.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the ClickHouse connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) createSchema(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS records (
		received_at     DateTime64(3),
		type            LowCardinality(String),
		unique_name     String,
		station         LowCardinality(String),
		expiration_time DateTime64(3),
		doc             String
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received_at)
	ORDER BY (type, received_at, unique_name)
	SETTINGS index_granularity = 8192`

	if err := a.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append archives a batch of records.
func (a *Archive) Append(ctx context.Context, records []*products.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO records (received_at, type, unique_name, station, expiration_time, doc)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if len(r.Bins) > 0 {
			continue
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		err = batch.Append(r.InsertTime, r.Type, r.UniqueName, r.Station, r.ExpirationTime, string(doc))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Count returns the number of archived records, optionally filtered by type.
func (a *Archive) Count(ctx context.Context, recordType string) (uint64, error) {
	var count uint64
	var err error
	if recordType != "" {
		row := a.conn.QueryRow(ctx, "SELECT count() FROM records WHERE type = ?", recordType)
		err = row.Scan(&count)
	} else {
		row := a.conn.QueryRow(ctx, "SELECT count() FROM records")
		err = row.Scan(&count)
	}
	return count, err
}
