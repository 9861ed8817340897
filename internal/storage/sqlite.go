package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"fisb_decode/internal/products"
)

// SQLite is a record store over a single SQLite file. It is the default
// backend; one harvester is the only writer.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite store at the given path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indices.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		type TEXT NOT NULL,
		expiration_time TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(collection, type);
	CREATE INDEX IF NOT EXISTS idx_documents_expiration ON documents(collection, expiration_time);
	`

	_, err := db.Exec(schema)
	return err
}

// Upsert stores the record under its identity key, replacing any previous
// document with the same key.
func (s *SQLite) Upsert(ctx context.Context, collection string, r *products.Record) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, type, expiration_time, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET
			type = excluded.type,
			expiration_time = excluded.expiration_time,
			doc = excluded.doc
	`, collection, r.Key(), r.Type, r.ExpirationTime.UTC().Format(sqlTimeLayout), string(doc))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Delete removes the document with the given key.
func (s *SQLite) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// FindOne returns the document with the given key, or nil when absent.
func (s *SQLite) FindOne(ctx context.Context, collection, key string) (*products.Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND key = ?`,
		collection, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return decodeRecord(doc)
}

// FindMany returns all documents matching the filter, ordered by key.
func (s *SQLite) FindMany(ctx context.Context, collection string, f Filter) ([]*products.Record, error) {
	query, args := filterQuery(`SELECT doc FROM documents`, collection, f)
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*products.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMany removes all documents matching the filter.
func (s *SQLite) DeleteMany(ctx context.Context, collection string, f Filter) (int, error) {
	query, args := filterQuery(`DELETE FROM documents`, collection, f)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// sqlTimeLayout keeps expiration times lexicographically comparable in the
// database, so the expiration sweep is a plain range query.
const sqlTimeLayout = "2006-01-02T15:04:05Z"

func filterQuery(prefix, collection string, f Filter) (string, []any) {
	query := prefix + ` WHERE collection = ?`
	args := []any{collection}

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.KeyPrefix != "" {
		query += ` AND key >= ? AND key < ?`
		args = append(args, f.KeyPrefix, f.KeyPrefix+"\xff")
	}
	if !f.ExpiredBefore.IsZero() {
		query += ` AND expiration_time <= ?`
		args = append(args, f.ExpiredBefore.UTC().Format(sqlTimeLayout))
	}
	return query, args
}

func decodeRecord(doc string) (*products.Record, error) {
	var r products.Record
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}
