// Package agent drives the bounded generate/execute-tools loop that
// turns a user utterance into a spoken response.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ariahome/aria/internal/facts"
	"github.com/ariahome/aria/internal/llm"
	"github.com/ariahome/aria/internal/music"
	"github.com/ariahome/aria/internal/respond"
	"github.com/ariahome/aria/internal/search"
	"github.com/ariahome/aria/internal/session"
	"github.com/ariahome/aria/internal/stream"
	"github.com/ariahome/aria/internal/tools"
)

// maxToolIterations caps tool-exchange rounds per user turn. A model
// that keeps requesting tools forever hits this instead of looping.
const maxToolIterations = 5

// fallbackMessage is returned whenever a turn cannot complete.
const fallbackMessage = "I encountered an issue processing your request."

// Deps wires the agent's collaborators. Music and Search may be nil;
// the matching tools are then withheld from the model.
type Deps struct {
	Provider llm.Provider
	Manager  *tools.Manager
	Facts    *facts.Store
	Music    *music.Handler
	Search   *search.Client
	Session  *session.Manager
	Logger   *slog.Logger

	// SystemPrompt overrides the default persona when non-empty.
	SystemPrompt string
	// AutoContinue mirrors the voice UI's always-keep-listening setting.
	AutoContinue bool
	// OnProgress, when set, receives short human-readable summaries of
	// notable tool activity ("Discovered 4 tools for light"), distinct
	// from the raw tool payloads sent back to the model.
	OnProgress func(line string)
}

// Agent is the conversation orchestrator.
type Agent struct {
	provider     llm.Provider
	manager      *tools.Manager
	store        *facts.Store
	music        *music.Handler
	search       *search.Client
	session      *session.Manager
	systemPrompt string
	autoContinue bool
	onProgress   func(line string)
	logger       *slog.Logger
}

// New creates an agent from its dependencies.
func New(d Deps) *Agent {
	return &Agent{
		provider:     d.Provider,
		manager:      d.Manager,
		store:        d.Facts,
		music:        d.Music,
		search:       d.Search,
		session:      d.Session,
		systemPrompt: d.SystemPrompt,
		autoContinue: d.AutoContinue,
		onProgress:   d.OnProgress,
		logger:       d.Logger.With("component", "agent"),
	}
}

// progress reports a summary line to the OnProgress hook, if any.
func (a *Agent) progress(line string) {
	if a.onProgress != nil {
		a.onProgress(line)
	}
}

// Response is the outcome of one user turn.
type Response struct {
	Text string
	// ContinueListening tells the voice UI to keep the microphone open.
	ContinueListening bool
}

// systemMessage assembles the system prompt: persona, marker
// instructions, and the current fact memory.
func (a *Agent) systemMessage() llm.Message {
	prompt := a.systemPrompt
	prompt += respond.ListeningInstructions(a.autoContinue)
	prompt += a.store.PromptSection()
	return llm.Message{Role: "system", Content: prompt}
}

func (a *Agent) initialSet() *tools.Set {
	return tools.NewSet(a.manager.InitialTools(a.music != nil, a.search != nil))
}

// runTools executes one round's tool calls and returns the tool-result
// messages, one per call in order, plus any newly discovered schemas.
func (a *Agent) runTools(ctx context.Context, calls []llm.ToolCall, set *tools.Set) ([]llm.Message, []map[string]any) {
	results := make([]llm.Message, 0, len(calls))
	var discovered []map[string]any
	for _, call := range calls {
		res, schemas := a.dispatch(ctx, call, set)
		discovered = append(discovered, schemas...)
		a.logger.Debug("tool executed", "tool", call.Function.Name, "success", res.Success)
		results = append(results, llm.Message{
			Role:       "tool",
			Content:    res.JSON(),
			ToolCallID: call.ID,
		})
	}
	return results, discovered
}

// Converse runs one blocking user turn.
func (a *Agent) Converse(ctx context.Context, text string) Response {
	history, epoch := a.session.Begin(text)
	msgs := append([]llm.Message{a.systemMessage()}, history...)
	set := a.initialSet()

	var turn []llm.Message
	for round := 0; round < maxToolIterations; round++ {
		msg, err := a.provider.Generate(ctx, msgs, set.Schemas())
		if err != nil {
			a.logger.Error("generation failed", "round", round, "error", err)
			a.session.Append(epoch, turn...)
			return Response{Text: fallbackMessage}
		}

		msgs = append(msgs, *msg)
		turn = append(turn, *msg)

		if len(msg.ToolCalls) == 0 {
			cleaned, listening := respond.ForListening(msg.Content, a.autoContinue)
			turn[len(turn)-1].Content = cleaned
			a.session.Append(epoch, turn...)
			return Response{Text: cleaned, ContinueListening: listening}
		}

		results, discovered := a.runTools(ctx, msg.ToolCalls, set)
		set.AddAll(discovered)
		msgs = append(msgs, results...)
		turn = append(turn, results...)
	}

	a.logger.Warn("tool iteration cap reached", "cap", maxToolIterations)
	a.session.Append(epoch, turn...)
	return Response{Text: fallbackMessage}
}

// ConverseStream runs one streaming user turn, emitting cleaned text
// deltas as they arrive. Tool rounds pause emission, run exactly as in
// blocking mode, then start a fresh streaming round.
func (a *Agent) ConverseStream(ctx context.Context, text string, emit func(delta string)) Response {
	history, epoch := a.session.Begin(text)
	msgs := append([]llm.Message{a.systemMessage()}, history...)
	set := a.initialSet()

	var turn []llm.Message
	for round := 0; round < maxToolIterations; round++ {
		proc := stream.New()
		var finalCalls []llm.ToolCall

		err := a.provider.GenerateStream(ctx, msgs, set.Schemas(), func(c llm.StreamChunk) {
			if c.IsFinal {
				finalCalls = c.ToolCalls
				return
			}
			if c.Content == "" {
				return
			}
			if out := proc.Feed(c.Content); out != "" {
				emit(out)
			}
		})
		if err != nil {
			a.logger.Error("streaming generation failed", "round", round, "error", err)
			a.session.Append(epoch, turn...)
			emit(fallbackMessage)
			return Response{Text: fallbackMessage}
		}

		if out := proc.Flush(); out != "" {
			emit(out)
		}

		if len(finalCalls) > 0 {
			asst := llm.Message{Role: "assistant", Content: proc.Clean(), ToolCalls: finalCalls}
			msgs = append(msgs, asst)
			turn = append(turn, asst)

			results, discovered := a.runTools(ctx, finalCalls, set)
			set.AddAll(discovered)
			msgs = append(msgs, results...)
			turn = append(turn, results...)
			continue
		}

		// When finalize synthesizes the trailing "?", trim the residual
		// whitespace first so the archived text matches blocking mode.
		final := proc.Clean()
		if out := proc.Finalize(); out != "" {
			emit(out)
			final = strings.TrimRight(final, " \t\n") + out
		}
		turn = append(turn, llm.Message{Role: "assistant", Content: final})
		a.session.Append(epoch, turn...)
		return Response{Text: final, ContinueListening: proc.MarkerFound()}
	}

	a.logger.Warn("tool iteration cap reached", "cap", maxToolIterations)
	a.session.Append(epoch, turn...)
	emit(fallbackMessage)
	return Response{Text: fallbackMessage}
}
