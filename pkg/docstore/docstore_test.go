package docstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecstore/pkg/batch"
	"github.com/fyrsmithlabs/vecstore/pkg/cache"
)

// fakeProvider returns fixed vectors for known texts and deterministic
// hash-derived vectors for everything else, recording every Embed call.
type fakeProvider struct {
	mu      sync.Mutex
	meta    ModelMetadata
	vectors map[string][]float32
	calls   [][]string
	err     error
}

func newFakeProvider(dim int) *fakeProvider {
	return &fakeProvider{
		meta: ModelMetadata{
			Provider:   "fake",
			Model:      "fake-model",
			Dimensions: dim,
		},
		vectors: make(map[string][]float32),
	}
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, append([]string(nil), texts...))
	if p.err != nil {
		return nil, p.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := p.vectors[text]; ok {
			out[i] = append([]float32(nil), vec...)
			continue
		}
		out[i] = hashVector(text, p.meta.Dimensions)
	}
	return out, nil
}

func (p *fakeProvider) ModelMetadata() ModelMetadata {
	return p.meta
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) embeddedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var all []string
	for _, call := range p.calls {
		all = append(all, call...)
	}
	return all
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		h := fnv.New32a()
		fmt.Fprintf(h, "%s:%d", text, i)
		vec[i] = float32(h.Sum32()%1000)/500.0 - 1.0
	}
	return vec
}

// memAdapter is an in-memory PersistenceAdapter recording every call.
type memAdapter struct {
	mu          sync.Mutex
	docs        map[string]StoredDocument
	meta        *StoreMetadata
	saveCalls   int
	removeCalls [][]string
	clearCalls  int
	failWith    error
	available   bool
}

func newMemAdapter() *memAdapter {
	return &memAdapter{docs: make(map[string]StoredDocument), available: true}
}

func (a *memAdapter) Load(context.Context) ([]StoredDocument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return nil, a.failWith
	}
	out := make([]StoredDocument, 0, len(a.docs))
	for _, doc := range a.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (a *memAdapter) LoadMetadata(context.Context) (*StoreMetadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return nil, a.failWith
	}
	return a.meta, nil
}

func (a *memAdapter) Save(_ context.Context, docs []StoredDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.saveCalls++
	for _, doc := range docs {
		a.docs[doc.ID] = doc
	}
	return nil
}

func (a *memAdapter) SaveMetadata(_ context.Context, meta StoreMetadata) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.meta = &meta
	return nil
}

func (a *memAdapter) Remove(_ context.Context, ids []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.removeCalls = append(a.removeCalls, append([]string(nil), ids...))
	for _, id := range ids {
		delete(a.docs, id)
	}
	return nil
}

func (a *memAdapter) Clear(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.clearCalls++
	a.docs = make(map[string]StoredDocument)
	return nil
}

func (a *memAdapter) IsAvailable(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

func (a *memAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.docs)
}

func newTestStore(t *testing.T, opts Options) (*Store, *fakeProvider) {
	t.Helper()
	provider := newFakeProvider(4)
	store, err := New(provider, opts)
	require.NoError(t, err)
	return store, provider
}

func TestNew(t *testing.T) {
	t.Run("requires provider", func(t *testing.T) {
		_, err := New(nil, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("defaults", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})
		assert.NotNil(t, store.logger)
		assert.NotNil(t, store.simFn)
		assert.Equal(t, 0, store.Count())
		assert.False(t, store.IsLoaded())
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then update preserves created_at", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})

		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		timeNow = func() time.Time { return base }
		defer func() { timeNow = time.Now }()

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "first"}))

		first, ok := store.Get("a")
		require.True(t, ok)
		assert.Equal(t, base, first.CreatedAt)
		assert.Equal(t, base, first.UpdatedAt)

		later := base.Add(time.Hour)
		timeNow = func() time.Time { return later }

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "second"}))

		second, ok := store.Get("a")
		require.True(t, ok)
		assert.Equal(t, "second", second.Content)
		assert.Equal(t, base, second.CreatedAt)
		assert.Equal(t, later, second.UpdatedAt)
		assert.Equal(t, 1, store.Count())
	})

	t.Run("generates id when missing", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})
		require.NoError(t, store.Upsert(ctx, Document{Content: "no id"}))

		docs := store.All()
		require.Len(t, docs, 1)
		assert.NotEmpty(t, docs[0].ID)
	})

	t.Run("provider error propagates", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		provider.err = errors.New("model offline")

		err := store.Upsert(ctx, Document{ID: "a", Content: "x"})
		require.Error(t, err)
		assert.Equal(t, 0, store.Count())
	})
}

func TestUpsertBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is a noop", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		require.NoError(t, store.UpsertBatch(ctx, nil))
		assert.Equal(t, 0, provider.callCount())
	})

	t.Run("chunks provider calls by batch size", func(t *testing.T) {
		store, provider := newTestStore(t, Options{
			Batch: batch.NewFixed(2, 0),
		})

		docs := make([]Document, 5)
		for i := range docs {
			docs[i] = Document{ID: fmt.Sprintf("d%d", i), Content: fmt.Sprintf("content %d", i)}
		}
		require.NoError(t, store.UpsertBatch(ctx, docs))

		assert.Equal(t, 3, provider.callCount())
		assert.Equal(t, 5, store.Count())
	})

	t.Run("deduplicates identical contents", func(t *testing.T) {
		store, provider := newTestStore(t, Options{
			Batch: batch.NewFixed(32, 0),
		})

		require.NoError(t, store.UpsertBatch(ctx, []Document{
			{ID: "a", Content: "same"},
			{ID: "b", Content: "same"},
			{ID: "c", Content: "other"},
		}))

		assert.ElementsMatch(t, []string{"same", "other"}, provider.embeddedTexts())

		a, _ := store.Get("a")
		b, _ := store.Get("b")
		assert.Equal(t, a.Embedding, b.Embedding)
	})

	t.Run("canceled context stops between chunks", func(t *testing.T) {
		store, _ := newTestStore(t, Options{
			Batch: batch.NewFixed(1, 50*time.Millisecond),
		})

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := store.UpsertBatch(cctx, []Document{
			{ID: "a", Content: "one"},
			{ID: "b", Content: "two"},
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestUpsertCache(t *testing.T) {
	ctx := context.Background()

	t.Run("hit skips provider", func(t *testing.T) {
		c := cache.NewLRU(cache.LRUConfig{})
		store, provider := newTestStore(t, Options{Cache: c})

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "cached text"}))
		require.Equal(t, 1, provider.callCount())

		// Same content under a different id hits the cache.
		require.NoError(t, store.Upsert(ctx, Document{ID: "b", Content: "cached text"}))
		assert.Equal(t, 1, provider.callCount())

		a, _ := store.Get("a")
		b, _ := store.Get("b")
		assert.Equal(t, a.Embedding, b.Embedding)
	})
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Options{})

	require.NoError(t, store.UpsertBatch(ctx, []Document{
		{ID: "a", Content: "alpha"},
		{ID: "c", Content: "gamma"},
	}))

	got := store.GetMany([]string{"a", "missing", "c"})
	require.Len(t, got, 3)
	require.NotNil(t, got[0])
	assert.Equal(t, "alpha", got[0].Content)
	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
	assert.Equal(t, "gamma", got[2].Content)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("removes existing, ignores missing", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})
		require.NoError(t, store.UpsertBatch(ctx, []Document{
			{ID: "a", Content: "alpha"},
			{ID: "b", Content: "beta"},
		}))

		require.NoError(t, store.Remove(ctx, "a", "missing"))
		assert.Equal(t, 1, store.Count())
		assert.False(t, store.Has("a"))
		assert.True(t, store.Has("b"))
	})

	t.Run("propagates to adapter with auto-save", func(t *testing.T) {
		adapter := newMemAdapter()
		store, _ := newTestStore(t, Options{Persistence: adapter, AutoSave: true})

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		require.NoError(t, store.Remove(ctx, "a", "ghost"))

		require.Len(t, adapter.removeCalls, 1)
		assert.Equal(t, []string{"a", "ghost"}, adapter.removeCalls[0])
		assert.Equal(t, 0, adapter.count())
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	adapter := newMemAdapter()
	store, _ := newTestStore(t, Options{Persistence: adapter})

	require.NoError(t, store.UpsertBatch(ctx, []Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	}))

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count())
	// Clear reaches the adapter even without auto-save.
	assert.Equal(t, 1, adapter.clearCalls)
}

func TestUpdateMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces metadata only", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		require.NoError(t, store.Upsert(ctx, Document{
			ID:       "a",
			Content:  "alpha",
			Metadata: map[string]interface{}{"lang": "go"},
		}))
		before, _ := store.Get("a")
		callsBefore := provider.callCount()

		require.NoError(t, store.UpdateMetadata(ctx, "a", map[string]interface{}{"lang": "rust"}))

		after, ok := store.Get("a")
		require.True(t, ok)
		assert.Equal(t, "rust", after.Metadata["lang"])
		assert.Equal(t, before.Content, after.Content)
		assert.Equal(t, before.Embedding, after.Embedding)
		assert.Equal(t, before.CreatedAt, after.CreatedAt)
		assert.Equal(t, callsBefore, provider.callCount())
	})

	t.Run("missing id is a noop", func(t *testing.T) {
		store, _ := newTestStore(t, Options{})
		require.NoError(t, store.UpdateMetadata(ctx, "ghost", map[string]interface{}{"x": 1}))
		assert.Equal(t, 0, store.Count())
	})
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Options{})

	require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
	store.Destroy()

	assert.Equal(t, 0, store.Count())
	assert.False(t, store.IsLoaded())

	// The instance stays usable after Destroy.
	require.NoError(t, store.Upsert(ctx, Document{ID: "b", Content: "beta"}))
	assert.Equal(t, 1, store.Count())
}

func TestAutoSave(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert persists full set", func(t *testing.T) {
		adapter := newMemAdapter()
		store, _ := newTestStore(t, Options{Persistence: adapter, AutoSave: true})

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		assert.Equal(t, 1, adapter.count())
		require.NotNil(t, adapter.meta)
		assert.Equal(t, "fake:fake-model", adapter.meta.ModelID)
		assert.Equal(t, 1, adapter.meta.DocumentCount)
	})

	t.Run("disabled auto-save never touches adapter", func(t *testing.T) {
		adapter := newMemAdapter()
		store, _ := newTestStore(t, Options{Persistence: adapter, AutoSave: false})

		require.NoError(t, store.Upsert(ctx, Document{ID: "a", Content: "alpha"}))
		assert.Equal(t, 0, adapter.saveCalls)
	})

	t.Run("save failure surfaces from upsert", func(t *testing.T) {
		adapter := newMemAdapter()
		adapter.failWith = errors.New("disk full")
		store, _ := newTestStore(t, Options{Persistence: adapter, AutoSave: true})

		err := store.Upsert(ctx, Document{ID: "a", Content: "alpha"})
		require.Error(t, err)
		// The in-memory write already happened.
		assert.True(t, store.Has("a"))
	})
}
