// Package redisstore implements docstore on Redis. Transactions are optimistic:
// every document read inside a transaction is WATCHed and all writes are
// applied in one MULTI/EXEC, so a concurrent change to anything read makes the
// commit fail with docstore.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ballot-engine/pkg/docstore"
	"ballot-engine/pkg/redis"
)

type Store struct {
	client *redis.Client
	keys   *redis.KeyBuilder
	log    *zap.Logger
}

var _ docstore.Store = (*Store)(nil)

// New creates a store on top of an already connected client
func New(client *redis.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, keys: client.KeyBuilder, log: log}
}

// RunTx runs fn inside WATCH/MULTI/EXEC
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
		t := &txn{store: s, rtx: rtx, pending: make(map[string][]byte)}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if len(t.ops) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			for _, op := range t.ops {
				op(p)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return docstore.ErrConflict
	}
	return err
}

// Get reads a single document outside any transaction
func (s *Store) Get(ctx context.Context, collection, id string, dst any) error {
	val, err := s.client.Get(ctx, s.keys.KeyDocument(collection, id))
	if errors.Is(err, redis.Nil) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dst)
}

// List reads ids from the collection index, then the documents in one pipeline
func (s *Store) List(ctx context.Context, collection, prefix string) ([]docstore.Document, error) {
	ids, err := s.ids(ctx, collection, prefix)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keys.KeyDocument(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	docs := make([]docstore.Document, 0, len(ids))
	for i, cmd := range cmds {
		body, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			// index entry outlived its document
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: ids[i], Body: body})
	}
	return docs, nil
}

// Counters returns every counter field of a document
func (s *Store) Counters(ctx context.Context, collection, id string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.keys.KeyCounter(collection, id))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s.%s is not an integer: %w", id, field, err)
		}
		out[field] = n
	}
	return out, nil
}

// DeletePrefix removes documents, counters and index entries for every id with prefix
func (s *Store) DeletePrefix(ctx context.Context, collection, prefix string) (int64, error) {
	ids, err := s.ids(ctx, collection, prefix)
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	keys := make([]string, 0, 2*len(ids))
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.keys.KeyDocument(collection, id), s.keys.KeyCounter(collection, id))
		members = append(members, id)
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.keys.KeyCollectionIndex(collection), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete %s/%s*: %w", collection, prefix, err)
	}

	s.log.Debug("redisstore_delete_prefix",
		zap.String("collection", collection),
		zap.Int("documents", len(ids)))
	return int64(len(ids)), nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *Store) ids(ctx context.Context, collection, prefix string) ([]string, error) {
	lo, hi := "-", "+"
	if prefix != "" {
		lo, hi = "["+prefix, "["+prefix+"\xff"
	}
	return s.client.ZRangeByLex(ctx, s.keys.KeyCollectionIndex(collection), lo, hi)
}

type txn struct {
	store *Store
	rtx   *goredis.Tx
	ops   []func(goredis.Pipeliner)
	// pending holds this transaction's own writes; nil marks a delete
	pending map[string][]byte
}

func (t *txn) Get(ctx context.Context, collection, id string, dst any) error {
	key := t.store.keys.KeyDocument(collection, id)
	if body, ok := t.pending[key]; ok {
		if body == nil {
			return docstore.ErrNotFound
		}
		return json.Unmarshal(body, dst)
	}

	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return err
	}
	body, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

// Read is Get: a WATCH only fails on writes, so readers never conflict
func (t *txn) Read(ctx context.Context, collection, id string, dst any) error {
	return t.Get(ctx, collection, id, dst)
}

func (t *txn) Create(ctx context.Context, collection, id string, doc any) error {
	key := t.store.keys.KeyDocument(collection, id)
	if body, ok := t.pending[key]; ok {
		if body != nil {
			return docstore.ErrAlreadyExists
		}
	} else {
		if err := t.rtx.Watch(ctx, key).Err(); err != nil {
			return err
		}
		n, err := t.rtx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return docstore.ErrAlreadyExists
		}
	}
	return t.Put(ctx, collection, id, doc)
}

func (t *txn) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	key := t.store.keys.KeyDocument(collection, id)
	idx := t.store.keys.KeyCollectionIndex(collection)
	t.pending[key] = body
	t.ops = append(t.ops, func(p goredis.Pipeliner) {
		p.Set(ctx, key, body, 0)
		p.ZAdd(ctx, idx, goredis.Z{Score: 0, Member: id})
	})
	return nil
}

func (t *txn) Delete(ctx context.Context, collection, id string) error {
	key := t.store.keys.KeyDocument(collection, id)
	counter := t.store.keys.KeyCounter(collection, id)
	idx := t.store.keys.KeyCollectionIndex(collection)
	t.pending[key] = nil
	t.ops = append(t.ops, func(p goredis.Pipeliner) {
		p.Del(ctx, key, counter)
		p.ZRem(ctx, idx, id)
	})
	return nil
}

func (t *txn) Incr(ctx context.Context, collection, id, field string, delta int64) error {
	key := t.store.keys.KeyCounter(collection, id)
	t.ops = append(t.ops, func(p goredis.Pipeliner) {
		p.HIncrBy(ctx, key, field, delta)
	})
	return nil
}

func (t *txn) Counter(ctx context.Context, collection, id, field string) (int64, error) {
	key := t.store.keys.KeyCounter(collection, id)
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return 0, err
	}
	n, err := t.rtx.HGet(ctx, key, field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
