// Package api implements the HTTP surface voice satellites talk to.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariahome/aria/internal/agent"
	"github.com/ariahome/aria/internal/buildinfo"
	"github.com/google/uuid"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// TurnEvent describes one completed conversation turn for observers
// such as the MQTT announcer.
type TurnEvent struct {
	TurnID            string
	Text              string
	Response          string
	ContinueListening bool
	Streamed          bool
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	agent   *agent.Agent
	logger  *slog.Logger
	server  *http.Server

	// onTurn, when set, is called after each completed turn.
	onTurn func(TurnEvent)

	streamingDefault bool
}

// NewServer creates a new API server. streamingDefault controls whether
// converse requests stream when the client does not say.
func NewServer(address string, port int, ag *agent.Agent, streamingDefault bool, logger *slog.Logger) *Server {
	return &Server{
		address:          address,
		port:             port,
		agent:            ag,
		streamingDefault: streamingDefault,
		logger:           logger.With("component", "api"),
	}
}

// OnTurn registers a completed-turn observer.
func (s *Server) OnTurn(fn func(TurnEvent)) {
	s.onTurn = fn
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/converse", s.handleConverse)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // long for streamed tool rounds
	}

	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Aria",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// ConverseRequest is one user utterance.
type ConverseRequest struct {
	Text   string `json:"text"`
	Stream *bool  `json:"stream,omitempty"`
}

// ConverseResponse is the non-streaming reply.
type ConverseResponse struct {
	TurnID            string `json:"turn_id"`
	Response          string `json:"response"`
	ContinueListening bool   `json:"continue_listening"`
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg}, s.logger)
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	var req ConverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	streaming := s.streamingDefault
	if req.Stream != nil {
		streaming = *req.Stream
	}

	turnID := uuid.New().String()
	if streaming {
		s.streamConverse(w, r, turnID, req.Text)
		return
	}

	resp := s.agent.Converse(r.Context(), req.Text)
	s.notifyTurn(turnID, req.Text, resp, false)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ConverseResponse{
		TurnID:            turnID,
		Response:          resp.Text,
		ContinueListening: resp.ContinueListening,
	}, s.logger)
}

func (s *Server) streamConverse(w http.ResponseWriter, r *http.Request, turnID, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			s.logger.Debug("failed to marshal stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	resp := s.agent.ConverseStream(r.Context(), text, func(delta string) {
		writeEvent(map[string]string{"content": delta})
	})
	writeEvent(map[string]any{
		"done":               true,
		"turn_id":            turnID,
		"response":           resp.Text,
		"continue_listening": resp.ContinueListening,
	})
	s.notifyTurn(turnID, text, resp, true)
}

func (s *Server) notifyTurn(turnID, text string, resp agent.Response, streamed bool) {
	if s.onTurn == nil {
		return
	}
	s.onTurn(TurnEvent{
		TurnID:            turnID,
		Text:              text,
		Response:          resp.Text,
		ContinueListening: resp.ContinueListening,
		Streamed:          streamed,
	})
}
