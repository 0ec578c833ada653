package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

func TestNewProvider(t *testing.T) {
	t.Run("hash", func(t *testing.T) {
		p, err := New(Config{Provider: "hash", Dimensions: 64})
		require.NoError(t, err)
		defer p.Close()

		meta := p.ModelMetadata()
		assert.Equal(t, "hash", meta.Provider)
		assert.Equal(t, 64, meta.Dimensions)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "carrier-pigeon"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestHashProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		p := NewHash(128)

		first, err := p.Embed(ctx, []string{"some document text"})
		require.NoError(t, err)
		second, err := p.Embed(ctx, []string{"some document text"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("distinct texts produce distinct vectors", func(t *testing.T) {
		p := NewHash(128)

		vecs, err := p.Embed(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.NotEqual(t, vecs[0], vecs[1])
	})

	t.Run("unit vectors", func(t *testing.T) {
		p := NewHash(384)

		vecs, err := p.Embed(ctx, []string{"normalize me"})
		require.NoError(t, err)
		require.Len(t, vecs, 1)
		assert.Len(t, vecs[0], 384)
		assert.InDelta(t, 1.0, similarity.Norm(vecs[0]), 1e-5)
	})

	t.Run("default dimensions", func(t *testing.T) {
		p := NewHash(0)
		assert.Equal(t, DefaultHashDimensions, p.ModelMetadata().Dimensions)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		p := NewHash(16)

		vecs, err := p.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)

		vecs, err = p.Embed(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})

	t.Run("canceled context", func(t *testing.T) {
		p := NewHash(16)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := p.Embed(cctx, []string{"text"})
		require.ErrorIs(t, err, context.Canceled)
	})
}
