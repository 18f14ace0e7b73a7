package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ariahome/aria/internal/httpkit"
)

// compatClient talks to any OpenAI-compatible chat completions endpoint.
// Groq and OpenAI are thin wrappers that differ only in base URL and
// default model.
type compatClient struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

func newCompat(name, baseURL string, opts Options, logger *slog.Logger) *compatClient {
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &compatClient{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		// Streaming responses can outlive any single read deadline, so the
		// per-call context carries the timeout instead of the client.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     logger.With("component", "llm", "provider", name),
	}
}

func (c *compatClient) Name() string { return c.name }

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *compatClient) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	if len(reqBody.Tools) > 0 {
		reqBody.ToolChoice = "auto"
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "chat request", "bytes", len(payload), "stream", reqBody.Stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 2048)
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, body)
	}
	return resp, nil
}

func (c *compatClient) Generate(ctx context.Context, messages []Message, tools []map[string]any) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       tools,
	})
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.name)
	}

	msg := parsed.Choices[0].Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}
	c.logger.Debug("generate complete",
		"finish_reason", parsed.Choices[0].FinishReason,
		"tool_calls", len(msg.ToolCalls))
	return &msg, nil
}

// streamDelta is one SSE event payload in a streaming completion.
type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallDelta is a fragment of a tool call. The index identifies which
// call the fragment belongs to; id and name typically arrive on the first
// fragment and arguments accrete across many.
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// toolCallArena accumulates fragmented tool-call deltas by index.
// Indices can arrive out of order and sparse; accessing one beyond the
// current length extends the arena with empty placeholders.
type toolCallArena struct {
	entries []*arenaEntry
}

type arenaEntry struct {
	id   string
	name strings.Builder
	args strings.Builder
}

func (a *toolCallArena) apply(d toolCallDelta) {
	if d.Index < 0 {
		return
	}
	for len(a.entries) <= d.Index {
		a.entries = append(a.entries, &arenaEntry{})
	}
	e := a.entries[d.Index]
	if d.ID != "" {
		e.id = d.ID
	}
	e.name.WriteString(d.Function.Name)
	e.args.WriteString(d.Function.Arguments)
}

// calls projects the arena into the final tool call list, preserving
// index order. Returns nil when nothing accumulated.
func (a *toolCallArena) calls() []ToolCall {
	if len(a.entries) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, ToolCall{
			ID:   e.id,
			Type: "function",
			Function: FunctionCall{
				Name:      e.name.String(),
				Arguments: e.args.String(),
			},
		})
	}
	return out
}

func (c *compatClient) GenerateStream(ctx context.Context, messages []Message, tools []map[string]any, fn func(StreamChunk)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       tools,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	arena := &toolCallArena{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			c.logger.Debug("skipping malformed stream event", "error", err)
			continue
		}
		if len(delta.Choices) == 0 {
			continue
		}
		choice := delta.Choices[0]
		if choice.Delta.Content != "" {
			fn(StreamChunk{Content: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			arena.apply(tc)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream from %s: %w", c.name, err)
	}

	final := arena.calls()
	c.logger.Debug("stream complete", "tool_calls", len(final))
	fn(StreamChunk{ToolCalls: final, IsFinal: true})
	return nil
}

// ValidateKey probes the endpoint with a one-token completion. Any
// failure, transport or status, reports the key as invalid.
func (c *compatClient) ValidateKey(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0,
		MaxTokens:   1,
	})
	if err != nil {
		c.logger.Debug("key validation failed", "error", err)
		return false
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	return true
}
