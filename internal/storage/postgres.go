package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fisb_decode/internal/products"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Postgres is a record store over a PostgreSQL documents table. Use it when
// several consumers read the current record set concurrently.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool and creates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection      TEXT NOT NULL,
		key             TEXT NOT NULL,
		type            TEXT NOT NULL,
		expiration_time TIMESTAMPTZ NOT NULL,
		doc             JSONB NOT NULL,
		PRIMARY KEY (collection, key)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(collection, type);
	CREATE INDEX IF NOT EXISTS idx_documents_expiration ON documents(collection, expiration_time);
	`

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, collection string, r *products.Record) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (collection, key, type, expiration_time, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, key) DO UPDATE SET
			type = EXCLUDED.type,
			expiration_time = EXCLUDED.expiration_time,
			doc = EXCLUDED.doc
	`, collection, r.Key(), r.Type, r.ExpirationTime.UTC(), doc)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (p *Postgres) FindOne(ctx context.Context, collection, key string) (*products.Record, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return decodeRecord(string(doc))
}

func (p *Postgres) FindMany(ctx context.Context, collection string, f Filter) ([]*products.Record, error) {
	query, args := pgFilterQuery(`SELECT doc FROM documents`, collection, f)
	query += ` ORDER BY key`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*products.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r, err := decodeRecord(string(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteMany(ctx context.Context, collection string, f Filter) (int, error) {
	query, args := pgFilterQuery(`DELETE FROM documents`, collection, f)

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func pgFilterQuery(prefix, collection string, f Filter) (string, []any) {
	query := prefix + ` WHERE collection = $1`
	args := []any{collection}

	if f.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, len(args)+1)
		args = append(args, f.Type)
	}
	if f.KeyPrefix != "" {
		query += fmt.Sprintf(` AND key >= $%d AND key < $%d`, len(args)+1, len(args)+2)
		args = append(args, f.KeyPrefix, f.KeyPrefix+"\xff")
	}
	if !f.ExpiredBefore.IsZero() {
		query += fmt.Sprintf(` AND expiration_time <= $%d`, len(args)+1)
		args = append(args, f.ExpiredBefore.UTC())
	}
	return query, args
}
