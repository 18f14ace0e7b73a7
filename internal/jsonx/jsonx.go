// Package jsonx extracts JSON from LLM output, which often arrives
// wrapped in markdown code fences or surrounded by commentary.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extract locates the JSON object in an LLM response and unmarshals it
// into result. It tolerates ```json fences and leading or trailing prose
// around the object. Arrays are not handled; the fact-extraction and
// tool paths only ever expect objects.
func Extract(response string, result any) error {
	raw, err := extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return fmt.Errorf("unmarshaling extracted JSON: %w", err)
	}
	return nil
}

func extract(response string) (string, error) {
	response = stripFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	// Fall back to the outermost brace pair. Crude, but matches what
	// models actually produce when they add commentary.
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		candidate := response[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON object in response: %q", preview)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
