package llm

import (
	"context"
)

// Message is one chat message sent to a completion backend.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer produces text from a system prompt and a chat transcript.
// Implementations classify failures with ClassifyCompletionError.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error)
	Model() string
}

// Embedder turns text into a fixed-length vector.
// Implementations classify failures with ClassifyEmbeddingError.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
