//go:build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without
// CGO support. Use the hash provider or build with CGO enabled.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbed is a stub for non-CGO builds.
type FastEmbed struct{}

// NewFastEmbed returns an error when CGO is not available.
func NewFastEmbed(_ FastEmbedConfig) (*FastEmbed, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Embed returns an error when CGO is not available.
func (p *FastEmbed) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// ModelMetadata returns an empty identity when CGO is not available.
func (p *FastEmbed) ModelMetadata() docstore.ModelMetadata {
	return docstore.ModelMetadata{Provider: "fastembed"}
}

// Close is a no-op when CGO is not available.
func (p *FastEmbed) Close() error {
	return nil
}
