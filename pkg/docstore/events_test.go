package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("added fires for new ids, updated for existing", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var added, updated []string
		store.OnDocumentAdded(func(d StoredDocument) { added = append(added, d.ID) })
		store.OnDocumentUpdated(func(d StoredDocument) { updated = append(updated, d.ID) })

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "first"}))
		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "second"}))

		assert.Equal(t, []string{"a"}, added)
		assert.Equal(t, []string{"a"}, updated)
	})

	t.Run("listener receives the stored document", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var got StoredDocument
		store.OnDocumentAdded(func(d StoredDocument) { got = d })

		require.NoError(t, store.Upsert(ctx, Document{
			ID:       "a",
			Content:  "alpha",
			Metadata: map[string]interface{}{"lang": "go"},
		}))

		assert.Equal(t, "a", got.ID)
		assert.Equal(t, "alpha", got.Content)
		assert.NotEmpty(t, got.Embedding)
		assert.Equal(t, "go", got.Metadata["lang"])
	})

	t.Run("removed fires once per removed id", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})
		require.NoError(t, store.UpsertBatch(ctx, []Document{
			{ID: "a", Content: "alpha"},
			{ID: "b", Content: "beta"},
		}))

		var removed []string
		store.OnDocumentRemoved(func(id string) { removed = append(removed, id) })

		require.NoError(t, store.Remove(ctx, "a", "ghost"))
		assert.Equal(t, []string{"a"}, removed)

		require.NoError(t, store.Clear(ctx))
		assert.ElementsMatch(t, []string{"a", "b"}, removed)
	})

	t.Run("listeners fire in subscription order", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var order []int
		store.OnDocumentAdded(func(StoredDocument) { order = append(order, 1) })
		store.OnDocumentAdded(func(StoredDocument) { order = append(order, 2) })
		store.OnDocumentAdded(func(StoredDocument) { order = append(order, 3) })

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		assert.Equal(t, []int{1, 2, 3}, order)
	})

	t.Run("unsubscribe stops delivery and is idempotent", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var fired int
		unsubscribe := store.OnDocumentAdded(func(StoredDocument) { fired++ })

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		require.Equal(t, 1, fired)

		unsubscribe()
		unsubscribe()

		require.NoError(t, store.Upsert(ctx, Document{ID: "b", Content: "beta"}))
		assert.Equal(t, 1, fired)
	})

	t.Run("unsubscribing one listener keeps the others", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var first, second int
		unsubscribe := store.OnDocumentAdded(func(StoredDocument) { first++ })
		store.OnDocumentAdded(func(StoredDocument) { second++ })

		unsubscribe()
		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))

		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})

	t.Run("listener panic propagates and aborts auto-save", func(t *testing.T) {
		adapter := newMemAdapter()
		store, _ := newTestStore(t, Options{Persistence: adapter, AutoSave: true})

		store.OnDocumentAdded(func(StoredDocument) { panic("listener failure") })

		assert.Panics(t, func() {
			_ = store.Upsert(ctx, Document{ID: "a", Content: "alpha"})
		})

		// The document landed in memory but the save never ran.
		assert.True(t, store.Has("a"))
		assert.Equal(t, 0, adapter.saveCalls)
	})

	t.Run("destroy drops all listeners", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		var fired int
		store.OnDocumentAdded(func(StoredDocument) { fired++ })
		store.Destroy()

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		assert.Equal(t, 0, fired)
	})
}
