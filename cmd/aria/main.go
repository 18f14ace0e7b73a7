// Aria is a voice-oriented conversational agent for Home Assistant.
//
// It exposes an HTTP API that voice satellites post utterances to,
// drives a tool-calling LLM loop against the Home Assistant service
// catalog, remembers facts about the household, and optionally announces
// itself over MQTT. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	aria serve              Start the API server
//	aria ask <question>     Ask a single question (for testing)
//	aria validate           Validate the configured LLM credentials
//	aria version            Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ariahome/aria/internal/agent"
	"github.com/ariahome/aria/internal/announce"
	"github.com/ariahome/aria/internal/api"
	"github.com/ariahome/aria/internal/buildinfo"
	"github.com/ariahome/aria/internal/config"
	"github.com/ariahome/aria/internal/facts"
	"github.com/ariahome/aria/internal/homeassistant"
	"github.com/ariahome/aria/internal/llm"
	"github.com/ariahome/aria/internal/music"
	"github.com/ariahome/aria/internal/prompts"
	"github.com/ariahome/aria/internal/search"
	"github.com/ariahome/aria/internal/session"
	"github.com/ariahome/aria/internal/storage"
	"github.com/ariahome/aria/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates immediately to [run], keeping os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the aria command. Arguments are parsed
// by hand; the flag package relies on package-level globals which makes
// it impossible to call run() concurrently from tests, and the argument
// surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			}
		}
	}

	switch command {
	case "serve":
		return cmdServe(ctx, stdout, configPath)
	case "ask":
		return cmdAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "validate":
		return cmdValidate(ctx, stdout, configPath)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q (try: aria -h)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `%s

Usage:
  aria [flags] <command>

Commands:
  serve              Start the API server
  ask <question>     Ask a single question (for testing)
  validate           Validate the configured LLM credentials
  version            Print version and build information

Flags:
  -config <path>     Path to config file (default: search standard locations)
`, buildinfo.String())
	return nil
}

// newLogger creates the structured logger every subcommand uses. All log
// output goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// app bundles everything built from the configuration.
type app struct {
	cfg       *config.Config
	agent     *agent.Agent
	session   *session.Manager
	store     *storage.Store
	music     *music.Handler
	watcher   *homeassistant.Watcher
	announcer *announce.Publisher
	logger    *slog.Logger
}

// buildApp constructs the full dependency graph from configuration.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	provider, err := llm.New(cfg.LLM.Provider, llm.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(filepath.Join(cfg.DataDir, "aria.db"))
	if err != nil {
		return nil, fmt.Errorf("opening data store: %w", err)
	}
	factStore := facts.NewStore(store.Facts(), logger)

	var extractor session.Extractor
	if cfg.Conversation.FactLearningEnabled() {
		extractor = session.NewFactExtractor(provider, factStore, logger)
	}
	sessions := session.NewManager(cfg.Conversation.Timeout(), extractor, logger)

	var host tools.Host
	var musicHandler *music.Handler
	var watcher *homeassistant.Watcher
	if cfg.HomeAssistant.Configured() {
		haClient := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
		host = homeassistant.NewCatalog(haClient, logger)

		if cfg.Music.Enabled {
			musicHandler = music.NewHandler(haClient, logger)
			watcher = homeassistant.NewWatcher(
				cfg.HomeAssistant.URL, cfg.HomeAssistant.Token,
				musicHandler.OnStateChange, logger)
		}
	} else {
		logger.Warn("no Home Assistant connection configured; smart-home tools disabled")
	}

	var searcher *search.Client
	if cfg.Search.Configured() {
		searcher = search.NewClient(cfg.Search.TavilyAPIKey, logger)
	}

	systemPrompt := cfg.Conversation.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.DefaultSystem
	}

	ag := agent.New(agent.Deps{
		Provider:     provider,
		Manager:      tools.NewManager(host, logger),
		Facts:        factStore,
		Music:        musicHandler,
		Search:       searcher,
		Session:      sessions,
		Logger:       logger,
		SystemPrompt: systemPrompt,
		AutoContinue: cfg.Conversation.AutoContinueListen,
		OnProgress: func(line string) {
			logger.Info("tool progress", "summary", line)
		},
	})

	var announcer *announce.Publisher
	if cfg.MQTT.Enabled {
		announcer = announce.New(cfg.MQTT, logger)
	}

	return &app{
		cfg:       cfg,
		agent:     ag,
		session:   sessions,
		store:     store,
		music:     musicHandler,
		watcher:   watcher,
		announcer: announcer,
		logger:    logger,
	}, nil
}

func cmdServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info("Aria starting", "version", buildinfo.Version, "config", cfgPath)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.session.Start(ctx)

	if a.watcher != nil {
		go a.watcher.Run(ctx)
		// Prime the player cache so music tools work before the first
		// state event arrives.
		primeCtx, primeCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := a.music.RefreshPlayers(primeCtx); err != nil {
			logger.Warn("initial player refresh failed", "error", err)
		}
		primeCancel()
	}

	if a.announcer != nil {
		go func() {
			if err := a.announcer.Start(ctx); err != nil {
				logger.Warn("mqtt announcer failed", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.agent,
		cfg.Conversation.StreamingEnabled(), logger)
	if a.announcer != nil {
		server.OnTurn(func(e api.TurnEvent) {
			a.announcer.PublishTurn(context.Background(), announce.Turn{
				TurnID:            e.TurnID,
				Text:              e.Text,
				Response:          e.Response,
				ContinueListening: e.ContinueListening,
				Streamed:          e.Streamed,
			})
		})
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if a.announcer != nil {
			_ = a.announcer.Stop(shutdownCtx)
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	a.session.Close()
	logger.Info("Aria stopped")
	return nil
}

func cmdAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("usage: aria ask <question>")
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(io.Discard, slog.LevelError)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	resp := a.agent.Converse(ctx, question)
	fmt.Fprintln(stdout, resp.Text)
	return nil
}

func cmdValidate(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(io.Discard, slog.LevelError)

	provider, err := llm.New(cfg.LLM.Provider, llm.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "config: %s\nprovider: %s\n", cfgPath, provider.Name())
	if !provider.ValidateKey(ctx) {
		return fmt.Errorf("API key validation failed for provider %s", provider.Name())
	}
	fmt.Fprintln(stdout, "API key: valid")
	return nil
}
