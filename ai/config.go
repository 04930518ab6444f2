// Package ai wires the request pipeline: generation clients, the
// classifier, validator, agents, and the orchestrator policy, all
// derived from the server profile.
package ai

import (
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/ai/orchestrator"
	"github.com/hrygo/civicsense/internal/profile"
)

// Config represents pipeline configuration.
type Config struct {
	LLM       llm.Config
	Intent    llm.Config
	Embedding llm.Config
	Safety    llm.Config

	// ConfidenceThreshold below which a model classification is
	// coerced to AMBIGUOUS.
	ConfidenceThreshold float32

	// LookupTimeout bounds each knowledge source lookup.
	LookupTimeout time.Duration

	// RetryAttempts for transient external failures.
	RetryAttempts int

	// AllowedDomains is the citation allowlist.
	AllowedDomains []string

	Policy  orchestrator.Policy
	Enabled bool
}

// NewConfigFromProfile creates the pipeline config from the profile,
// filling policy defaults for unset knobs.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}
	if !cfg.Enabled {
		return cfg
	}

	llmTimeout := time.Duration(p.LLMTimeout) * time.Second
	if llmTimeout <= 0 {
		llmTimeout = 10 * time.Second
	}

	cfg.LLM = llm.Config{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		MaxTokens:   2048,
		Temperature: 0.7,
		Timeout:     llmTimeout,
	}

	// The classifier fallback uses a lightweight model when configured,
	// otherwise it shares the main generation config.
	cfg.Intent = cfg.LLM
	cfg.Intent.Temperature = 0.1
	if p.IntentModel != "" {
		cfg.Intent.Model = p.IntentModel
		if p.IntentAPIKey != "" {
			cfg.Intent.APIKey = p.IntentAPIKey
		}
		if p.IntentBaseURL != "" {
			cfg.Intent.BaseURL = p.IntentBaseURL
		}
	}

	cfg.Embedding = cfg.LLM
	if p.EmbeddingProvider != "" {
		cfg.Embedding.Provider = p.EmbeddingProvider
	}
	if p.EmbeddingModel != "" {
		cfg.Embedding.EmbeddingModel = p.EmbeddingModel
	}
	if p.EmbeddingAPIKey != "" {
		cfg.Embedding.APIKey = p.EmbeddingAPIKey
	}
	if p.EmbeddingBaseURL != "" {
		cfg.Embedding.BaseURL = p.EmbeddingBaseURL
	}

	// Moderation runs against the OpenAI endpoint unless pointed elsewhere.
	cfg.Safety = cfg.LLM
	cfg.Safety.Provider = "openai"
	if p.SafetyAPIKey != "" {
		cfg.Safety.APIKey = p.SafetyAPIKey
	}
	if p.SafetyBaseURL != "" {
		cfg.Safety.BaseURL = p.SafetyBaseURL
	}

	cfg.ConfidenceThreshold = float32(p.ConfidenceThreshold)
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}

	cfg.LookupTimeout = time.Duration(p.LookupTimeout) * time.Second
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}

	cfg.RetryAttempts = p.RetryAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}

	cfg.AllowedDomains = p.AllowedDomainList()
	if len(cfg.AllowedDomains) == 0 {
		// The default allowlist covers the official portals the
		// knowledge corpus cites.
		cfg.AllowedDomains = []string{"usa.gov", "vote.gov", "gov", "gob.es", "gob.mx", "gob.ar"}
	}

	cfg.Policy = orchestrator.Policy{
		RegenBudget:       p.RegenBudget,
		MaxClarifications: p.MaxClarifications,
		CacheTTL:          time.Duration(p.CacheTTLHours) * time.Hour,
		StoreTimeout:      time.Duration(p.StoreTimeout) * time.Second,
		DefaultLanguage:   p.DefaultLang,
	}
	if cfg.Policy.RegenBudget <= 0 {
		cfg.Policy.RegenBudget = 2
	}
	if cfg.Policy.MaxClarifications <= 0 {
		cfg.Policy.MaxClarifications = 2
	}
	if cfg.Policy.CacheTTL <= 0 {
		cfg.Policy.CacheTTL = 24 * time.Hour
	}
	if cfg.Policy.StoreTimeout <= 0 {
		cfg.Policy.StoreTimeout = 2 * time.Second
	}
	if cfg.Policy.DefaultLanguage == "" {
		cfg.Policy.DefaultLanguage = "en"
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	return nil
}
