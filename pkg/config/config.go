// Package config loads forge settings from YAML with environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nstogner/forge/pkg/model"
)

// Config holds all forge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Models    ModelsConfig    `yaml:"models"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	History   HistoryConfig   `yaml:"history"`
	Flags     FlagsConfig     `yaml:"flags"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ProvidersConfig holds backend credentials.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// ModelsConfig names the models used for each role.
type ModelsConfig struct {
	Default         string       `yaml:"default"`
	Fallback        string       `yaml:"fallback"`
	Vanilla         string       `yaml:"vanilla"`
	Safety          string       `yaml:"safety"`
	VisionPrimary   string       `yaml:"vision_primary"`
	VisionSecondary string       `yaml:"vision_secondary"`
	Catalog         []model.Spec `yaml:"catalog"`
}

// SandboxConfig configures the docker command runner.
type SandboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image"`
	Workdir string `yaml:"workdir"`
	IdleTTL string `yaml:"idle_ttl"`
}

// HistoryConfig configures the capped result log.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
	// DBPath selects the sqlite log; empty keeps history in memory.
	DBPath string `yaml:"db_path"`
}

// FlagsConfig holds the runtime switches that can change without restart.
type FlagsConfig struct {
	Maintenance  bool `yaml:"maintenance"`
	ForceVanilla bool `yaml:"force_vanilla"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{BaseURL: "https://api.groq.com/openai/v1"},
		},
		Models: ModelsConfig{
			Default:         "llama-3.3-70b-versatile",
			Fallback:        "gemini-2.0-flash",
			Vanilla:         "llama-3.1-8b-instant",
			Safety:          "meta-llama/llama-guard-4-12b",
			VisionPrimary:   "meta-llama/llama-4-scout-17b-16e-instruct",
			VisionSecondary: "gemini-2.0-flash",
			Catalog: []model.Spec{
				{ID: "llama-3.3-70b-versatile", Provider: model.ProviderOpenAI, Temperature: model.Float(0.7), MaxTokens: 8192},
				{ID: "llama-3.1-8b-instant", Provider: model.ProviderOpenAI, Temperature: model.Float(0.7), MaxTokens: 8192},
				{ID: "meta-llama/llama-guard-4-12b", Provider: model.ProviderOpenAI, Temperature: model.Float(0), MaxTokens: 10},
				{ID: "meta-llama/llama-4-scout-17b-16e-instruct", Provider: model.ProviderOpenAI, MaxTokens: 1024, Vision: true},
				{ID: "gemini-2.0-flash", Provider: model.ProviderGemini, Temperature: model.Float(0.7), MaxTokens: 8192, Vision: true},
			},
		},
		Sandbox: SandboxConfig{
			Image:   "node:20-alpine",
			Workdir: "/workspace",
			IdleTTL: "15m",
		},
		History:  HistoryConfig{Capacity: 100},
		LogLevel: "info",
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Providers.OpenAI.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.Providers.OpenAI.BaseURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Providers.Gemini.APIKey = key
	}
	if addr := os.Getenv("FORGE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("FORGE_HISTORY_DB"); path != "" {
		c.History.DBPath = path
	}

	for name, dst := range map[string]*bool{
		"FORGE_MAINTENANCE":   &c.Flags.Maintenance,
		"FORGE_FORCE_VANILLA": &c.Flags.ForceVanilla,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, v, err)
		}
		*dst = b
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Models.Default == "" || c.Models.Fallback == "" {
		return fmt.Errorf("models.default and models.fallback are required")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive, got %d", c.History.Capacity)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Sandbox.IdleTTL != "" {
		if _, err := time.ParseDuration(c.Sandbox.IdleTTL); err != nil {
			return fmt.Errorf("invalid sandbox.idle_ttl: %w", err)
		}
	}
	for _, s := range c.Models.Catalog {
		if s.ID == "" {
			return fmt.Errorf("models.catalog entries need an id")
		}
		if s.Provider != model.ProviderOpenAI && s.Provider != model.ProviderGemini {
			return fmt.Errorf("model %q: unknown provider %q", s.ID, s.Provider)
		}
	}
	return nil
}

// GetIdleTTL returns the sandbox idle TTL as a duration.
func (c *Config) GetIdleTTL() time.Duration {
	d, err := time.ParseDuration(c.Sandbox.IdleTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}
