// Package session owns the rolling conversation transcript: inactivity
// expiry, the background sweep, and the fact-extraction pass over a
// timed-out conversation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariahome/aria/internal/llm"
)

// Extractor receives the transcript of an expired conversation, one
// "Role: content" line per message. It runs on a background goroutine.
type Extractor func(ctx context.Context, transcript []string)

// Manager holds one conversation buffer shared between the request path
// and the background sweep. Expiry bumps a monotonic epoch; appends
// carry the epoch they were read under, so a turn that raced an expiry
// is dropped instead of leaking into the next conversation.
type Manager struct {
	mu           sync.Mutex
	messages     []llm.Message
	lastActivity time.Time
	epoch        uint64

	timeout time.Duration
	extract Extractor
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewManager creates a session manager. extract may be nil to disable
// fact extraction on expiry.
func NewManager(timeout time.Duration, extract Extractor, logger *slog.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		extract: extract,
		logger:  logger.With("component", "session"),
	}
}

// Begin starts a user turn: expires the session if it idled out, appends
// the user message, and returns a copy of the transcript so far plus the
// epoch the turn runs under.
func (m *Manager) Begin(content string) ([]llm.Message, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(time.Now())

	m.messages = append(m.messages, llm.Message{Role: "user", Content: content})
	m.lastActivity = time.Now()

	history := make([]llm.Message, len(m.messages))
	copy(history, m.messages)
	return history, m.epoch
}

// Append records the messages produced during a turn. It reports false,
// and records nothing, when the session expired since the turn began.
func (m *Manager) Append(epoch uint64, msgs ...llm.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		m.logger.Debug("dropping messages from expired turn", "count", len(msgs))
		return false
	}
	m.messages = append(m.messages, msgs...)
	m.lastActivity = time.Now()
	return true
}

// Messages returns a copy of the current transcript, after applying any
// pending expiry.
func (m *Manager) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(time.Now())
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the current transcript length without triggering expiry.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear drops the transcript without fact extraction.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.epoch++
}

// expireLocked clears the session if it has idled past the timeout,
// scheduling fact extraction over the pre-clear transcript. Callers hold
// the lock.
func (m *Manager) expireLocked(now time.Time) {
	if len(m.messages) == 0 || now.Sub(m.lastActivity) <= m.timeout {
		return
	}

	transcript := Transcript(m.messages)
	m.logger.Info("session expired", "messages", len(m.messages), "idle", now.Sub(m.lastActivity).Round(time.Second))
	m.messages = nil
	m.epoch++

	if m.extract == nil || len(transcript) == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		m.extract(ctx, transcript)
	}()
}

// Start runs the periodic expiry sweep until ctx is cancelled. Wait for
// completion with Close.
func (m *Manager) Start(ctx context.Context) {
	interval := m.timeout / 2
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.mu.Lock()
				m.expireLocked(time.Now())
				m.mu.Unlock()
			}
		}
	}()
}

// Close waits for the sweep and any in-flight extraction to finish.
func (m *Manager) Close() {
	m.wg.Wait()
}

// Transcript renders messages as "Role: content" lines, skipping tool
// traffic and empty content.
func Transcript(messages []llm.Message) []string {
	var out []string
	for _, msg := range messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		if msg.Content == "" {
			continue
		}
		role := "User"
		if msg.Role == "assistant" {
			role = "Assistant"
		}
		out = append(out, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return out
}
