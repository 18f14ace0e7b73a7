package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*compatClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := newCompat("test", srv.URL, Options{APIKey: "test-key", Model: "test-model"}, testLogger())
	return c, srv
}

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Lights are on."},"finish_reason":"stop"}]}`)
	})

	msg, err := client.Generate(context.Background(),
		[]Message{{Role: "user", Content: "turn on the lights"}}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}
	if gotReq.Stream {
		t.Error("blocking request should not set stream")
	}
	if msg.Content != "Lights are on." {
		t.Errorf("Content = %q", msg.Content)
	}
}

func TestGenerateToolCalls(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_1","function":{"name":"query_facts","arguments":"{\"query\":\"birthday\"}"}}
		]},"finish_reason":"tool_calls"}]}`)
	})

	msg, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "when is my birthday"}}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.Type != "function" {
		t.Errorf("Type = %q, want function default", tc.Type)
	}
	if got := tc.Args()["query"]; got != "birthday" {
		t.Errorf("Args()[query] = %v", got)
	}
}

func TestGenerateToolChoice(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody = nil
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	})

	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "query_facts"}}}
	if _, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, tools); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := gotBody["tool_choice"]; got != "auto" {
		t.Errorf("tool_choice = %v, want auto when tools are attached", got)
	}

	if _, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got, present := gotBody["tool_choice"]; present {
		t.Errorf("tool_choice = %v, want omitted without tools", got)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestGenerateStream(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []StreamChunk
	err := client.GenerateStream(context.Background(),
		[]Message{{Role: "user", Content: "greet me"}}, nil,
		func(c StreamChunk) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "Hello" || chunks[1].Content != " there" {
		t.Errorf("content chunks = %q, %q", chunks[0].Content, chunks[1].Content)
	}
	last := chunks[2]
	if !last.IsFinal {
		t.Error("last chunk should be final")
	}
	if last.ToolCalls != nil {
		t.Errorf("final ToolCalls = %+v, want nil", last.ToolCalls)
	}
}

func TestGenerateStreamFragmentedToolCalls(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// id and name arrive first, arguments accrete across fragments,
		// and a second call at index 1 interleaves.
		events := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"play_music","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"media_id\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"query_facts","arguments":"{}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"jazz\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var final StreamChunk
	err := client.GenerateStream(context.Background(),
		[]Message{{Role: "user", Content: "play jazz"}}, nil,
		func(c StreamChunk) {
			if c.IsFinal {
				final = c
			}
		})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if len(final.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2: %+v", len(final.ToolCalls), final.ToolCalls)
	}
	first := final.ToolCalls[0]
	if first.ID != "call_a" || first.Function.Name != "play_music" {
		t.Errorf("first call = %+v", first)
	}
	if got := first.Args()["media_id"]; got != "jazz" {
		t.Errorf("reassembled arguments gave media_id = %v", got)
	}
	if final.ToolCalls[1].Function.Name != "query_facts" {
		t.Errorf("second call = %+v", final.ToolCalls[1])
	}
}

func TestValidateKey(t *testing.T) {
	ok, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"h"},"finish_reason":"length"}]}`)
	})
	if !ok.ValidateKey(context.Background()) {
		t.Error("ValidateKey = false for healthy endpoint")
	}

	bad, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if bad.ValidateKey(context.Background()) {
		t.Error("ValidateKey = true for rejecting endpoint")
	}
}

func TestToolCallArgsTolerant(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"empty", ""},
		{"malformed", `{"query": `},
		{"null", "null"},
		{"wrong type", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := ToolCall{Function: FunctionCall{Name: "x", Arguments: tt.args}}
			got := tc.Args()
			if got == nil || len(got) != 0 {
				t.Errorf("Args() = %v, want empty map", got)
			}
		})
	}
}

func TestFactory(t *testing.T) {
	for _, name := range []string{"groq", "openai", "Groq", " OPENAI "} {
		if _, err := New(name, Options{APIKey: "k"}, testLogger()); err != nil {
			t.Errorf("New(%q) returned error: %v", name, err)
		}
	}
	if _, err := New("ollama", Options{}, testLogger()); err == nil {
		t.Error("New(ollama) should fail")
	}
}
