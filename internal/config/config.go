// Package config loads CLI settings from YAML with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/petasbytes/go-openrouter/chat"
	"gopkg.in/yaml.v3"
)

const (
	BackendOpenRouter = "openrouter"
	BackendAnthropic  = "anthropic"
)

// Environment overrides applied after the file is decoded.
const (
	EnvModel       = "OPENROUTER_MODEL"
	EnvBaseURL     = "OPENROUTER_BASE_URL"
	EnvTokenBudget = "ORT_TOKEN_BUDGET"
)

// Config holds the conversation settings used by the CLI.
type Config struct {
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`

	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`

	Temperature *float64 `yaml:"temperature"`
	TopK        *int     `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   *int     `yaml:"max_tokens"`
	Stop        []string `yaml:"stop"`

	ToolChoice        string `yaml:"tool_choice"`
	ParallelToolCalls *bool  `yaml:"parallel_tool_calls"`

	ResponseMimeType string   `yaml:"response_mime_type"`
	Providers        []string `yaml:"providers"`
	ThinkingBudget   *int     `yaml:"thinking_budget"`

	// Timeout bounds each send, e.g. "45s".
	Timeout time.Duration `yaml:"timeout"`
	// Backoff retries rate limits and transient server errors.
	Backoff bool `yaml:"backoff"`

	// TokenBudget bounds the estimated size of the history sent each turn;
	// 0 sends the full history.
	TokenBudget int `yaml:"token_budget"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendOpenRouter,
		Model:   chat.DefaultModel,
		Backoff: true,
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path yields Default with overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses a YAML payload on top of Default. Unknown keys are rejected.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvModel)); v != "" {
		c.Model = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTokenBudget)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTokenBudget, v, err)
		}
		c.TokenBudget = n
	}
	return nil
}

// Validate enforces minimal structural guarantees.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	switch c.Backend {
	case BackendOpenRouter, BackendAnthropic:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model is required")
	}
	switch chat.ToolChoice(c.ToolChoice) {
	case "", chat.ToolChoiceAuto, chat.ToolChoiceRequired, chat.ToolChoiceNone:
	default:
		return fmt.Errorf("unknown tool_choice %q", c.ToolChoice)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be within [0, 2]: %v", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return fmt.Errorf("top_p must be within [0, 1]: %v", *c.TopP)
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive: %d", *c.MaxTokens)
	}
	if c.ThinkingBudget != nil && *c.ThinkingBudget <= 0 {
		return fmt.Errorf("thinking_budget must be positive: %d", *c.ThinkingBudget)
	}
	if c.TokenBudget < 0 {
		return fmt.Errorf("token_budget cannot be negative: %d", c.TokenBudget)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %s", c.Timeout)
	}
	return nil
}

// Request builds a conversation request holding msgs. The system prompt, if
// set, becomes the first message.
func (c Config) Request(msgs ...chat.Message) chat.Request {
	req := chat.NewRequest(msgs...)
	req.Model = c.Model
	req.Temperature = c.Temperature
	req.TopK = c.TopK
	req.TopP = c.TopP
	req.MaxTokens = c.MaxTokens
	req.StopSequences = c.Stop
	req.ToolChoice = chat.ToolChoice(c.ToolChoice)
	req.ParallelToolCalls = c.ParallelToolCalls
	req.ResponseMimeType = c.ResponseMimeType
	req.Providers = c.Providers
	req.ThinkingBudget = c.ThinkingBudget
	req.Timeout = c.Timeout
	if c.SystemPrompt != "" {
		req = req.WithSystemInstruction(c.SystemPrompt)
	}
	return req
}
