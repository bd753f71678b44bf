package llm

import (
	"context"
	"sync"
)

// MockCompleter is a configurable Completer for tests.
// Set CompleteFunc to control behavior; nil returns "" and nil.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error)
	ModelName    string

	mu            sync.Mutex
	CompleteCalls int
	LastSystem    string
	LastMessages  []Message
	LastTemp      float64
}

func NewMockCompleter() *MockCompleter {
	return &MockCompleter{ModelName: "mock-model"}
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.LastSystem = systemPrompt
	m.LastMessages = append([]Message(nil), messages...)
	m.LastTemp = temperature
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, messages, temperature)
	}
	return "", nil
}

func (m *MockCompleter) Model() string {
	return m.ModelName
}

// MockEmbedder is a configurable Embedder for tests.
// Set EmbedFunc to control behavior; nil returns a nil vector and nil.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	ModelName string

	mu         sync.Mutex
	EmbedCalls int
	Texts      []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{ModelName: "mock-embed"}
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.Texts = append(m.Texts, text)
	fn := m.EmbedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return nil, nil
}

// EmbedBatch implements Embedder by calling Embed per text.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbedder) Model() string {
	return m.ModelName
}

var (
	_ Completer = (*MockCompleter)(nil)
	_ Embedder  = (*MockEmbedder)(nil)
)
