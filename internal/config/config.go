// Package config handles Aria configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/aria/config.yaml, /etc/aria/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aria", "config.yaml"))
	}

	paths = append(paths, "/etc/aria/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Aria configuration.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	LLM           LLMConfig           `yaml:"llm"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Music         MusicConfig         `yaml:"music"`
	Search        SearchConfig        `yaml:"search"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	DataDir       string              `yaml:"data_dir"`
	LogLevel      string              `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the language model provider settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // groq, openai
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`    // defaults per provider when empty
	BaseURL     string  `yaml:"base_url"` // override for self-hosted gateways
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"` // per-call request timeout
}

// Timeout returns the per-call LLM timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// ConversationConfig defines session and response behavior.
type ConversationConfig struct {
	SystemPrompt         string `yaml:"system_prompt"` // empty = built-in default
	TimeoutSec           int    `yaml:"timeout_sec"`   // session inactivity timeout
	Streaming            *bool  `yaml:"streaming"`     // nil = enabled
	AutoContinueListen   bool   `yaml:"auto_continue_listening"`
	FactLearning         *bool  `yaml:"fact_learning"` // nil = enabled
}

// Timeout returns the session inactivity timeout as a duration.
func (c ConversationConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// StreamingEnabled reports whether streaming responses are enabled.
// Defaults to true when unset.
func (c ConversationConfig) StreamingEnabled() bool {
	return c.Streaming == nil || *c.Streaming
}

// FactLearningEnabled reports whether timeout-triggered fact extraction
// is enabled. Defaults to true when unset.
func (c ConversationConfig) FactLearningEnabled() bool {
	return c.FactLearning == nil || *c.FactLearning
}

// HomeAssistantConfig defines HA connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Configured reports whether a Home Assistant connection is set up.
func (c HomeAssistantConfig) Configured() bool {
	return c.URL != "" && c.Token != ""
}

// MusicConfig defines the music assistant integration.
type MusicConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SearchConfig defines web search settings.
type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// Configured reports whether web search is available.
func (c SearchConfig) Configured() bool {
	return c.TavilyAPIKey != ""
}

// MQTTConfig defines the optional MQTT presence publisher.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"` // e.g. mqtt://broker.local:1883
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BaseTopic  string `yaml:"base_topic"`  // default "aria"
	DeviceName string `yaml:"device_name"` // default "Aria"
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Provider:    "groq",
			Temperature: 0.7,
			MaxTokens:   1024,
			TimeoutSec:  30,
		},
		Conversation: ConversationConfig{
			TimeoutSec: 60,
		},
		MQTT: MQTTConfig{
			BaseTopic:  "aria",
			DeviceName: "Aria",
		},
		DataDir: ".",
	}
}
