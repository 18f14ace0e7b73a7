package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// StateChange is one state_changed event delivered to a watcher handler.
type StateChange struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

// Watcher maintains a WebSocket subscription to state_changed events and
// delivers them to a handler. It reconnects with backoff until its
// context is cancelled.
type Watcher struct {
	baseURL string
	token   string
	handler func(StateChange)
	logger  *slog.Logger
}

// NewWatcher creates a watcher. handler is called on the watcher's
// goroutine and must not block.
func NewWatcher(baseURL, token string, handler func(StateChange), logger *slog.Logger) *Watcher {
	return &Watcher{
		baseURL: baseURL,
		token:   token,
		handler: handler,
		logger:  logger.With("component", "ha_watcher"),
	}
}

// wsMessage is the generic Home Assistant WebSocket message format.
type wsMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Event   *wsEvent        `json:"event,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type wsEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Run connects and processes events until ctx is cancelled. Connection
// failures back off from one second up to one minute.
func (w *Watcher) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := w.connectAndStream(ctx)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

func (w *Watcher) connectAndStream(ctx context.Context) error {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/api/websocket"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := w.authenticate(conn); err != nil {
		return err
	}

	if err := conn.WriteJSON(map[string]any{
		"id":         1,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	w.logger.Info("watching state_changed events")
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.EventType != "state_changed" {
			continue
		}
		var change StateChange
		if err := json.Unmarshal(msg.Event.Data, &change); err != nil {
			w.logger.Debug("skipping malformed state_changed event", "error", err)
			continue
		}
		w.handler(change)
	}
}

func (w *Watcher) authenticate(conn *websocket.Conn) error {
	var authReq wsMessage
	if err := conn.ReadJSON(&authReq); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if authReq.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", authReq.Type)
	}

	if err := conn.WriteJSON(map[string]string{
		"type":         "auth",
		"access_token": w.token,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var authResp wsMessage
	if err := conn.ReadJSON(&authResp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if authResp.Type != "auth_ok" {
		return fmt.Errorf("authentication rejected: %s", authResp.Type)
	}
	return nil
}
