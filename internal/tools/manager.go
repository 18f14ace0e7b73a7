package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// HostTool is one externally registered tool as the smart-home host
// describes it.
type HostTool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema; nil means no arguments
}

// Host is the external tool catalog the manager discovers from and
// dispatches to.
type Host interface {
	ListTools(ctx context.Context) ([]HostTool, error)
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Result is the outcome of one tool execution, serialized back to the
// LLM as a tool message.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps a successful tool result.
func OK(v any) Result { return Result{Success: true, Result: v} }

// Fail wraps a failed tool result.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

// Failf wraps a formatted failure.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// JSON renders the result for the tool message content. Marshaling a
// Result cannot realistically fail, but a fallback keeps the contract
// that tool execution never aborts the turn.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(b)
}

// Manager discovers and executes the host's tool catalog.
type Manager struct {
	host   Host
	logger *slog.Logger
}

// NewManager creates a manager. host may be nil when no smart-home
// backend is configured; discovery then returns an empty catalog.
func NewManager(host Host, logger *slog.Logger) *Manager {
	return &Manager{host: host, logger: logger.With("component", "tools")}
}

// InitialTools returns the tool set every turn starts with: the
// meta-tools, plus the music block and web search when enabled.
func (m *Manager) InitialTools(includeMusic, includeWebSearch bool) []map[string]any {
	out := MetaToolSchemas()
	if includeMusic {
		out = append(out, MusicSchemas()...)
	}
	if includeWebSearch {
		out = append(out, WebSearchSchema())
	}
	return out
}

// QueryTools pulls the host catalog, filters by domain if given, and
// returns the converted schemas not already present in have. The caller
// merges them into its set; this method never mutates have.
func (m *Manager) QueryTools(ctx context.Context, domain string, have *Set) ([]map[string]any, error) {
	if m.host == nil {
		return nil, nil
	}
	catalog, err := m.host.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing host tools: %w", err)
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	var fresh []map[string]any
	for _, t := range catalog {
		if domain != "" && !matchesDomain(t, domain) {
			continue
		}
		if have.Has(t.Name) {
			continue
		}
		fresh = append(fresh, FunctionSchema(t.Name, t.Description, t.Parameters))
	}
	m.logger.Debug("tool discovery", "domain", domain, "catalog", len(catalog), "new", len(fresh))
	return fresh, nil
}

// matchesDomain is an approximate filter: name prefix or description
// containment, case-insensitive.
func matchesDomain(t HostTool, domain string) bool {
	return strings.HasPrefix(strings.ToLower(t.Name), domain) ||
		strings.Contains(strings.ToLower(t.Description), domain)
}

// ExecuteTool runs one host tool. Any failure is folded into the result;
// tool execution is never fatal to the conversation.
func (m *Manager) ExecuteTool(ctx context.Context, name string, args map[string]any) Result {
	if m.host == nil {
		return Failf("tool %s is unavailable: no smart-home backend configured", name)
	}
	out, err := m.host.Execute(ctx, name, args)
	if err != nil {
		m.logger.Warn("tool execution failed", "tool", name, "error", err)
		return Fail(err.Error())
	}
	return OK(out)
}
