package config

import (
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

const (
	DefaultAPIBase   = "http://localhost:8003/v1"
	DefaultModelName = "Qwen3-VL-4B-Instruct"
	// DefaultAPIKey is what local OpenAI-compatible servers accept.
	DefaultAPIKey    = "EMPTY"
	DefaultAgentType = "openai"
)

// Model is a vision-language endpoint
type Model struct {
	Name        string   `hcl:"name,label"`
	Provider    Provider `hcl:"provider,optional"`
	BaseURL     string   `hcl:"base_url,optional"`
	Model       string   `hcl:"model,optional"`
	APIKey      string   `hcl:"api_key,optional"`
	AgentType   string   `hcl:"agent_type,optional"`
	Timeout     string   `hcl:"timeout,optional"`
	MaxTokens   int      `hcl:"max_tokens,optional"`
	Temperature float64  `hcl:"temperature,optional"`
}

// Defaults fills in default values for unset fields
func (m *Model) Defaults() {
	if m.Provider == "" {
		m.Provider = ProviderOpenAI
	}
	if m.BaseURL == "" && m.Provider == ProviderOpenAI {
		m.BaseURL = DefaultAPIBase
	}
	if m.Model == "" {
		m.Model = DefaultModelName
	}
	if m.APIKey == "" {
		m.APIKey = DefaultAPIKey
	}
	if m.AgentType == "" {
		m.AgentType = DefaultAgentType
	}
	if m.Timeout == "" {
		m.Timeout = "120s"
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 1024
	}
}

func (m *Model) Validate() error {
	switch m.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("Unsupported provider; Provider '%s' is not supported", m.Provider)
	}
	switch strings.ToLower(m.AgentType) {
	case "", "openai", "openaiagent", "qwen_vl", "qwen", "qwenvl", "qwenvlagent":
	default:
		return fmt.Errorf("unknown agent_type '%s' (expected openai or qwen_vl)", m.AgentType)
	}
	if _, err := parseDuration("timeout", m.Timeout); err != nil {
		return err
	}
	if m.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}

// TimeoutDuration is the per-call timeout; zero when unset.
func (m *Model) TimeoutDuration() time.Duration {
	d, _ := parseDuration("timeout", m.Timeout)
	return d
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration '%s'", field, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}
