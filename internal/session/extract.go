package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ariahome/aria/internal/facts"
	"github.com/ariahome/aria/internal/jsonx"
	"github.com/ariahome/aria/internal/llm"
	"github.com/ariahome/aria/internal/prompts"
)

// NewFactExtractor returns an Extractor that asks the LLM to mine an
// expired conversation for durable facts and merges them into the store.
// Every failure mode degrades to "no facts learned".
func NewFactExtractor(provider llm.Provider, store *facts.Store, logger *slog.Logger) Extractor {
	logger = logger.With("component", "fact_extraction")
	return func(ctx context.Context, transcript []string) {
		msg, err := provider.Generate(ctx, []llm.Message{
			{Role: "user", Content: prompts.FactExtraction(transcript)},
		}, nil)
		if err != nil {
			logger.Warn("extraction call failed", "error", err)
			return
		}

		// Values are decoded loosely: models return arrays and bare
		// scalars alongside strings, and one odd value must not cost
		// the rest of the batch.
		var parsed struct {
			Facts map[string]any `json:"facts"`
		}
		if err := jsonx.Extract(msg.Content, &parsed); err != nil {
			logger.Warn("unparseable extraction response", "error", err)
			return
		}

		learned := make(map[string]string, len(parsed.Facts))
		for key, value := range parsed.Facts {
			rendered := renderFactValue(value)
			if strings.TrimSpace(key) == "" || rendered == "" {
				continue
			}
			learned[key] = rendered
		}
		if len(learned) == 0 {
			logger.Debug("no facts extracted")
			return
		}
		store.Merge(learned)
		logger.Info("learned facts from expired session", "count", len(learned))
	}
}

// renderFactValue flattens a decoded fact value to the stored string
// form. Arrays join with ", "; empty values render as "".
func renderFactValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := renderFactValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
