// Package docstoretest holds behaviour tests shared by every docstore backend.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballot-engine/pkg/docstore"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Run exercises store. Collections are namespaced by the subtest name so a
// single store can be shared.
func Run(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		var it item
		assert.ErrorIs(t, store.Get(ctx, "missing", "nope", &it), docstore.ErrNotFound)
	})

	t.Run("create and read back", func(t *testing.T) {
		err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if err := tx.Create(ctx, "create", "a", item{Name: "A"}); err != nil {
				return err
			}
			var own item
			if err := tx.Get(ctx, "create", "a", &own); err != nil {
				return err
			}
			assert.Equal(t, "A", own.Name)
			var shared item
			if err := tx.Read(ctx, "create", "a", &shared); err != nil {
				return err
			}
			assert.Equal(t, "A", shared.Name)
			return nil
		})
		require.NoError(t, err)

		var got item
		require.NoError(t, store.Get(ctx, "create", "a", &got))
		assert.Equal(t, "A", got.Name)

		err = store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Create(ctx, "create", "a", item{Name: "again"})
		})
		assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	})

	t.Run("failed transaction writes nothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if err := tx.Put(ctx, "rollback", "x", item{Name: "X"}); err != nil {
				return err
			}
			if err := tx.Incr(ctx, "rollback", "x", "hits", 1); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var got item
		assert.ErrorIs(t, store.Get(ctx, "rollback", "x", &got), docstore.ErrNotFound)
		counters, err := store.Counters(ctx, "rollback", "x")
		require.NoError(t, err)
		assert.Empty(t, counters)
	})

	t.Run("list by prefix", func(t *testing.T) {
		err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			for _, id := range []string{"e1:b", "e1:a", "e2:a", "e10:a"} {
				if err := tx.Put(ctx, "list", id, item{Name: id}); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		docs, err := store.List(ctx, "list", "e1:")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "e1:a", docs[0].ID)
		assert.Equal(t, "e1:b", docs[1].ID)

		var first item
		require.NoError(t, docs[0].Decode(&first))
		assert.Equal(t, "e1:a", first.Name)

		all, err := store.List(ctx, "list", "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("counters and delete", func(t *testing.T) {
		err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if err := tx.Put(ctx, "counted", "c", item{Name: "C"}); err != nil {
				return err
			}
			if err := tx.Incr(ctx, "counted", "c", "votes", 3); err != nil {
				return err
			}
			return tx.Incr(ctx, "counted", "c", "voters", 1)
		})
		require.NoError(t, err)
		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Incr(ctx, "counted", "c", "votes", -1)
		}))

		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			n, err := tx.Counter(ctx, "counted", "c", "votes")
			assert.Equal(t, int64(2), n)
			if err != nil {
				return err
			}
			missing, err := tx.Counter(ctx, "counted", "c", "absent")
			assert.Zero(t, missing)
			return err
		}))

		counters, err := store.Counters(ctx, "counted", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(2), counters["votes"])
		assert.Equal(t, int64(1), counters["voters"])

		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Delete(ctx, "counted", "c")
		}))
		var got item
		assert.ErrorIs(t, store.Get(ctx, "counted", "c", &got), docstore.ErrNotFound)
		counters, err = store.Counters(ctx, "counted", "c")
		require.NoError(t, err)
		assert.Empty(t, counters)
	})

	t.Run("delete prefix", func(t *testing.T) {
		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			for _, id := range []string{"gone:1", "gone:2", "kept:1"} {
				if err := tx.Put(ctx, "prefix", id, item{Name: id}); err != nil {
					return err
				}
			}
			return nil
		}))

		n, err := store.DeletePrefix(ctx, "prefix", "gone:")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		docs, err := store.List(ctx, "prefix", "")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "kept:1", docs[0].ID)
	})

	t.Run("concurrent create is at most once", func(t *testing.T) {
		const n = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			exists  int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for {
					err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
						return tx.Create(ctx, "race", "only", item{Name: fmt.Sprint(i)})
					})
					if errors.Is(err, docstore.ErrConflict) {
						continue
					}
					mu.Lock()
					switch {
					case err == nil:
						created++
					case errors.Is(err, docstore.ErrAlreadyExists):
						exists++
					default:
						t.Errorf("unexpected error: %v", err)
					}
					mu.Unlock()
					return
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, n-1, exists)
	})

	t.Run("concurrent readers all commit", func(t *testing.T) {
		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Put(ctx, "shared", "parent", item{Name: "P"})
		}))

		const n = 8
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for {
					err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
						var parent item
						if err := tx.Read(ctx, "shared", "parent", &parent); err != nil {
							return err
						}
						if err := tx.Create(ctx, "shared-children", fmt.Sprint(i), item{Name: parent.Name}); err != nil {
							return err
						}
						return tx.Incr(ctx, "shared", "parent", "children", 1)
					})
					if errors.Is(err, docstore.ErrConflict) {
						continue
					}
					assert.NoError(t, err)
					return
				}
			}(i)
		}
		wg.Wait()

		counters, err := store.Counters(ctx, "shared", "parent")
		require.NoError(t, err)
		assert.Equal(t, int64(n), counters["children"])
	})

	t.Run("read-modify-write conflicts are detected", func(t *testing.T) {
		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
			return tx.Put(ctx, "rmw", "doc", item{})
		}))

		const n = 10
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
						var it item
						if err := tx.Get(ctx, "rmw", "doc", &it); err != nil {
							return err
						}
						it.Count++
						return tx.Put(ctx, "rmw", "doc", it)
					})
					if errors.Is(err, docstore.ErrConflict) {
						continue
					}
					assert.NoError(t, err)
					return
				}
			}()
		}
		wg.Wait()

		var got item
		require.NoError(t, store.Get(ctx, "rmw", "doc", &got))
		assert.Equal(t, n, got.Count)
	})
}
