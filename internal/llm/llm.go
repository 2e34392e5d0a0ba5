// Package llm talks to the classification oracle.
package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/config"
)

// Request is one structured query to an oracle.
type Request struct {
	System     string
	Prompt     string
	SchemaName string
	// Schema is the JSON schema the answer must satisfy. Providers that
	// cannot enforce it pass it along as an instruction.
	Schema    json.RawMessage
	MaxTokens int
}

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	IsConfigured() bool
	Name() string
}

// CreateProvider picks the configured provider, falling back to the hosted
// providers that have an API key. It returns nil when none is usable.
func CreateProvider(c config.Classification) Provider {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second

	openai := NewOpenAIProvider(Options{Model: c.OpenAIModel, APIKey: os.Getenv(c.APIKeyEnv), Timeout: timeout})
	anthropic := NewAnthropicProvider(Options{Model: c.AnthropicModel, APIKey: os.Getenv(c.AnthropicKeyEnv), Timeout: timeout})

	var candidates []Provider
	switch strings.ToLower(c.Provider) {
	case "ollama":
		candidates = []Provider{NewOllamaProvider(Options{Model: c.Model, BaseURL: c.OllamaURL, Timeout: timeout}), openai, anthropic}
	case "anthropic":
		candidates = []Provider{anthropic, openai}
	default:
		candidates = []Provider{openai, anthropic}
	}

	for i, p := range candidates {
		if p.IsConfigured() {
			if i > 0 {
				log.Warn().Str("requested", c.Provider).Str("using", p.Name()).Msg("requested provider unavailable, falling back")
			}
			log.Info().Str("provider", p.Name()).Msg("using LLM provider")
			return p
		}
	}

	log.Error().Str("openai_key_env", c.APIKeyEnv).Str("anthropic_key_env", c.AnthropicKeyEnv).
		Msg("no LLM provider available; start Ollama or set an API key")
	return nil
}

// Options configures a single provider.
type Options struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout == 0 {
		return 120 * time.Second
	}
	return o.Timeout
}

func maxTokens(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}
