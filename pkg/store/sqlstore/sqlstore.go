// Package sqlstore persists resources in a SQLite table, one row per
// resource, with the body encoded by the collection's codec.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	getQuery    = "SELECT body FROM resources WHERE collection = ? AND id = ?"
	listQuery   = "SELECT body FROM resources WHERE collection = ? ORDER BY seq"
	deleteQuery = "DELETE FROM resources WHERE collection = ? AND id = ?"
	saveQuery   = "INSERT INTO resources (collection, id, seq, body) " +
		"VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM resources WHERE collection = ?), ?) " +
		"ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body"
)

type Store struct {
	db     *sql.DB
	codecs *encoder.Registry
}

var _ store.Store = (*Store)(nil)

// CreateTables creates the resources table if needed.
func CreateTables(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Open opens the sqlite database at dsn and prepares the schema.
func Open(ctx context.Context, dsn string, codecs *encoder.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite has a single writer; serialising here avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := CreateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, codecs), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, codecs *encoder.Registry) *Store {
	return &Store{db: db, codecs: codecs}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key store.Key) (any, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, getQuery, key.Collection, key.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return s.codecs.Decode(key.Collection, body)
}

func (s *Store) List(ctx context.Context, collection string) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, listQuery, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		v, err := s.codecs.Decode(collection, body)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, key store.Key, resource any) error {
	body, err := s.codecs.Encode(key.Collection, resource)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, saveQuery, key.Collection, key.ID, key.Collection, body); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, key.Collection, key.ID); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
