package llm

import "log/slog"

const (
	openaiBaseURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o"
)

// NewOpenAI creates a provider backed by the OpenAI API.
func NewOpenAI(opts Options, logger *slog.Logger) Provider {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	return newCompat("openai", openaiBaseURL, opts, logger)
}
