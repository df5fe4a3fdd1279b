// Package generation produces natural-language answers from a prompt and
// retrieved context via an OpenAI-compatible chat completions API.
package generation

import (
	"context"
	"errors"
)

// ErrNoChoices indicates the API accepted the request but returned no
// completion choices.
var ErrNoChoices = errors.New("no completion choices returned")

// Client is the interface for answer-generating model clients.
type Client interface {
	// Generate answers prompt using docContext as grounding material.
	Generate(ctx context.Context, prompt, docContext string) (string, error)
}
