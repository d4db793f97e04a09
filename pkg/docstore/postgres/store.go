// Package postgres implements docstore on PostgreSQL through pgx. Documents
// live in one jsonb table and counters in another. Transactions run at READ
// COMMITTED; Tx.Get takes a row lock (SELECT ... FOR UPDATE) so concurrent
// read-modify-write transactions on the same document serialize.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ballot-engine/pkg/docstore"
)

// Schema creates the tables the store needs. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS counters (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	field TEXT NOT NULL,
	value BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (collection, id, field)
);
`

// DropSchema removes the store's tables
const DropSchema = `
DROP TABLE IF EXISTS counters;
DROP TABLE IF EXISTS documents;
`

type Store struct {
	pool *pgxpool.Pool
}

var _ docstore.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txn{tx: tx}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func (s *Store) Get(ctx context.Context, collection, id string, dst any) error {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&body)
	if err != nil {
		return mapError(err)
	}
	return json.Unmarshal(body, dst)
}

func (s *Store) List(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, body FROM documents
		 WHERE collection = $1 AND starts_with(id, $2)
		 ORDER BY id COLLATE "C"`,
		collection, prefix)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var d docstore.Document
		if err := rows.Scan(&d.ID, &d.Body); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) Counters(ctx context.Context, collection, id string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field, value FROM counters WHERE collection = $1 AND id = $2`,
		collection, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			field string
			value int64
		)
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		out[field] = value
	}
	return out, rows.Err()
}

func (s *Store) DeletePrefix(ctx context.Context, collection, prefix string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND starts_with(id, $2)`,
		collection, prefix)
	if err != nil {
		return 0, mapError(err)
	}
	n := tag.RowsAffected()
	if _, err := tx.Exec(ctx,
		`DELETE FROM counters WHERE collection = $1 AND starts_with(id, $2)`,
		collection, prefix); err != nil {
		return 0, mapError(err)
	}
	return n, mapError(tx.Commit(ctx))
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type txn struct {
	tx pgx.Tx
}

func (t *txn) Get(ctx context.Context, collection, id string, dst any) error {
	var body []byte
	err := t.tx.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&body)
	if err != nil {
		return mapError(err)
	}
	return json.Unmarshal(body, dst)
}

func (t *txn) Read(ctx context.Context, collection, id string, dst any) error {
	var body []byte
	err := t.tx.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR SHARE`,
		collection, id).Scan(&body)
	if err != nil {
		return mapError(err)
	}
	return json.Unmarshal(body, dst)
}

func (t *txn) Create(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, body)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrAlreadyExists
	}
	return nil
}

func (t *txn) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		collection, id, body)
	return mapError(err)
}

func (t *txn) Delete(ctx context.Context, collection, id string) error {
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id); err != nil {
		return mapError(err)
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM counters WHERE collection = $1 AND id = $2`,
		collection, id)
	return mapError(err)
}

func (t *txn) Incr(ctx context.Context, collection, id, field string, delta int64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO counters (collection, id, field, value) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id, field) DO UPDATE SET value = counters.value + EXCLUDED.value`,
		collection, id, field, delta)
	return mapError(err)
}

func (t *txn) Counter(ctx context.Context, collection, id, field string) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT value FROM counters WHERE collection = $1 AND id = $2 AND field = $3 FOR UPDATE`,
		collection, id, field).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, mapError(err)
}

// mapError translates pgx errors into docstore errors. Serialization failures
// and deadlocks become docstore.ErrConflict; a unique violation means a
// concurrent insert won.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", docstore.ErrConflict, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, pgErr.Message)
		}
	}
	return err
}
