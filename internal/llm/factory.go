package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

// New constructs a provider by name. Unknown names fail rather than
// silently falling back to a default backend.
func New(provider string, opts Options, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "groq":
		return NewGroq(opts, logger), nil
	case "openai":
		return NewOpenAI(opts, logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q (supported: groq, openai)", provider)
	}
}
