// Package docstore is a small transactional document store: JSON documents
// addressed by collection and id, plus per-document integer counters that can
// be incremented without reading them.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict is a transient serialization failure. The whole
	// transaction may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// Document is a raw stored document
type Document struct {
	ID   string
	Body []byte
}

// Decode unmarshals the document body into dst
func (d Document) Decode(dst any) error {
	return json.Unmarshal(d.Body, dst)
}

// Tx is a read-then-conditionally-write transaction. Reads see the
// transaction's own writes.
type Tx interface {
	// Get reads a document into dst and makes the transaction conflict if
	// the document changes before commit
	Get(ctx context.Context, collection, id string, dst any) error
	// Read is Get without the intent to write the document. Concurrent
	// readers do not conflict with each other, only with a writer.
	Read(ctx context.Context, collection, id string, dst any) error
	// Create writes doc only if no document with that id exists
	Create(ctx context.Context, collection, id string, doc any) error
	// Put creates or replaces a document
	Put(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	// Incr adds delta to a counter field without reading it
	Incr(ctx context.Context, collection, id, field string, delta int64) error
	// Counter reads a counter field and conflicts with concurrent increments.
	// Increments made by this transaction are not included.
	Counter(ctx context.Context, collection, id, field string) (int64, error)
}

// Store is implemented by the Postgres and Redis backends
type Store interface {
	// RunTx runs fn atomically. Nothing is written if fn returns an error.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, collection, id string, dst any) error
	// List returns every document whose id starts with prefix, ordered by id
	List(ctx context.Context, collection, prefix string) ([]Document, error)
	Counters(ctx context.Context, collection, id string) (map[string]int64, error)
	// DeletePrefix removes every document and counter whose id starts with prefix
	DeletePrefix(ctx context.Context, collection, prefix string) (int64, error)
	Health(ctx context.Context) error
}
