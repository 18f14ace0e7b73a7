package llm

import "log/slog"

const (
	groqBaseURL = "https://api.groq.com/openai/v1"

	// DefaultGroqModel is used when no model is configured.
	DefaultGroqModel = "llama-3.3-70b-versatile"
)

// NewGroq creates a provider backed by the Groq API.
func NewGroq(opts Options, logger *slog.Logger) Provider {
	if opts.Model == "" {
		opts.Model = DefaultGroqModel
	}
	return newCompat("groq", groqBaseURL, opts, logger)
}
