package llm

import (
	"context"
	"time"
)

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Generate performs a blocking chat completion and returns the
	// assistant message, which may carry tool calls.
	Generate(ctx context.Context, messages []Message, tools []map[string]any) (*Message, error)

	// GenerateStream performs a streaming chat completion, invoking fn
	// for each chunk. Content chunks arrive as tokens are produced; the
	// final chunk has IsFinal set and carries any accumulated tool calls.
	GenerateStream(ctx context.Context, messages []Message, tools []map[string]any, fn func(StreamChunk)) error

	// ValidateKey probes the backend with a minimal request and reports
	// whether the configured credentials are usable.
	ValidateKey(ctx context.Context) bool

	// Name returns the provider identifier, e.g. "groq".
	Name() string
}

// Options configures a provider. Zero-value fields take provider defaults.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}
