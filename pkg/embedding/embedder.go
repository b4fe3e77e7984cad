// Package embedding turns normalized product text into dense vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to embed.
var ErrEmptyText = errors.New("cannot embed empty text")

// Embedder maps normalized text to a fixed-length vector.
// Version identifies the model; vectors from different versions are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Version() string
}
