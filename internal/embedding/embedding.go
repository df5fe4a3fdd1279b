// Package embedding turns text into fixed-dimension vectors via an
// OpenAI-compatible embeddings API.
package embedding

import (
	"context"
	"errors"
)

// ErrNoEmbeddings indicates the API accepted the request but returned no
// vectors.
var ErrNoEmbeddings = errors.New("no embeddings returned")

// Client is the interface for embedding API clients.
//
// EmbedBatch is all or nothing: either every input gets a vector, in input
// order, or the call fails as a whole.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
