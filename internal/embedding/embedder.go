// Package embedding wraps the text-encoding model used to build and query the
// vector index. One model instance is loaded per process and reused; all
// inference calls are serialized through the provider so concurrent query
// handlers never call into the model directly.
package embedding

import (
	"context"
	"errors"
)

// Error values for consistent error handling by callers.
var (
	// ErrModelUnavailable indicates the embedding backend or model could not
	// be reached or loaded. This is a configuration error: the caller must
	// fix the environment (start Ollama, pull the model) and retry.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrEmptyInput indicates there was nothing to embed.
	ErrEmptyInput = errors.New("empty embedding input")
)

// InputKind distinguishes document text from query text. Some models (mxbai)
// want a retrieval prefix on queries but not on stored passages.
type InputKind int

const (
	InputDocument InputKind = iota
	InputQuery
)

// Embedder converts text into fixed-dimension vectors.
//
// Initialize is idempotent: repeated calls are no-ops while the same model is
// loaded. Embed and EmbedBatch are pure functions of the loaded model and the
// input text. Implementations must be safe for concurrent use.
type Embedder interface {
	// Initialize loads the model once. It fails with ErrModelUnavailable if
	// the backend cannot serve the configured model.
	Initialize(ctx context.Context) error

	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string, kind InputKind) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order. Used
	// during index rebuilds for throughput.
	EmbedBatch(ctx context.Context, texts []string, kind InputKind) ([][]float32, error)

	// ModelID returns the active model identifier, used to tag embedding
	// records and validate persisted snapshots.
	ModelID() string
}
