// Package llm provides LLM provider implementations.
package llm

import (
	"encoding/json"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model, in the OpenAI
// function-calling wire shape. Arguments travel as a JSON-encoded string;
// use [ToolCall.Args] to parse them.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and JSON-encoded arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args parses the JSON-encoded argument string into an object. Malformed
// or empty arguments degrade to an empty object. A parse failure here is
// the model's fault and must never abort the conversation turn.
func (tc ToolCall) Args() map[string]any {
	if tc.Function.Arguments == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// StreamChunk is the provider's incremental output unit. Content and
// ToolCalls are mutually exclusive in well-formed streams except on the
// final chunk, which carries only the accumulated tool calls.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCall
	IsFinal   bool
}
