package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

// DefaultHashDimensions matches the width of the default fastembed model
// so the two providers are interchangeable in configuration.
const DefaultHashDimensions = 384

// Hash is a deterministic embedding provider with no model behind it.
// Identical texts always produce identical unit vectors; similarity
// scores between different texts carry no semantic meaning. It exists
// for tests, demos, and offline development.
type Hash struct {
	dimensions int
}

// NewHash creates a hash provider with the given vector width.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &Hash{dimensions: dimensions}
}

// Embed derives one unit vector per text from a chain of SHA-256 digests.
func (p *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *Hash) embedOne(text string) []float32 {
	vec := make([]float32, p.dimensions)
	digest := sha256.Sum256([]byte(text))

	for i := 0; i < p.dimensions; i++ {
		if i%8 == 0 && i > 0 {
			digest = sha256.Sum256(digest[:])
		}
		word := binary.LittleEndian.Uint32(digest[(i%8)*4:])
		vec[i] = float32(word%2000)/1000.0 - 1.0
	}

	return similarity.Normalize(vec)
}

// ModelMetadata identifies the hash scheme as a pseudo-model.
func (p *Hash) ModelMetadata() docstore.ModelMetadata {
	return docstore.ModelMetadata{
		Provider:   "hash",
		Model:      fmt.Sprintf("sha256-%d", p.dimensions),
		Dimensions: p.dimensions,
	}
}

// Close is a no-op.
func (p *Hash) Close() error {
	return nil
}
