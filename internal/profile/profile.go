package profile

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, ollama, ...) use the same config shape.
	LLMProvider string // Provider identifier: openai, deepseek, ollama, or any OpenAI-compatible endpoint
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has default per provider
	LLMModel    string
	LLMTimeout  int // LLM request timeout in seconds (default: 10)

	// Intent classifier fallback model. Uses a lightweight model for fast,
	// cost-effective classification. Falls back to the main LLM config when unset.
	IntentModel   string
	IntentAPIKey  string
	IntentBaseURL string

	// Embedding configuration for the vector knowledge source.
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string

	// Safety classifier (moderation) configuration.
	SafetyAPIKey  string
	SafetyBaseURL string

	// Policy knobs. Zero values are replaced by policy defaults in ai.NewConfigFromProfile.
	ConfidenceThreshold float64 // Classifier fallback confidence threshold (default: 0.6)
	RegenBudget         int     // Validator regeneration budget (default: 2)
	MaxClarifications   int     // Clarification retries per session (default: 2)
	CacheTTLHours       int     // Response cache TTL (default: 24)
	LookupTimeout       int     // Knowledge lookup timeout in seconds (default: 3)
	StoreTimeout        int     // Store operation timeout in seconds (default: 2)
	RetryAttempts       int     // Retries for transient external errors (default: 2)
	AllowedDomains      string  // Comma-separated citation domain allowlist

	Mode        string
	Addr        string
	Port        int
	Data        string
	Driver      string
	DSN         string
	Version     string
	InstanceURL string
	DefaultLang string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
// Without it the engine still serves rule-matched intents, but the generative
// fallback and all capability generation degrade to service errors.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// AllowedDomainList splits the configured citation allowlist.
func (p *Profile) AllowedDomainList() []string {
	if p.AllowedDomains == "" {
		return nil
	}
	parts := strings.Split(p.AllowedDomains, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if d := strings.TrimSpace(part); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv fills the profile from CIVICSENSE_* environment variables.
// Flag values already present on the profile take precedence over defaults,
// so FromEnv only fills fields that are still empty.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("CIVICSENSE_LLM_PROVIDER", p.LLMProvider)
	p.LLMAPIKey = getEnvOrDefault("CIVICSENSE_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("CIVICSENSE_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnvOrDefault("CIVICSENSE_LLM_MODEL", p.LLMModel)
	p.LLMTimeout = getEnvOrDefaultInt("CIVICSENSE_LLM_TIMEOUT", p.LLMTimeout)

	p.IntentModel = getEnvOrDefault("CIVICSENSE_INTENT_MODEL", p.IntentModel)
	p.IntentAPIKey = getEnvOrDefault("CIVICSENSE_INTENT_API_KEY", p.IntentAPIKey)
	p.IntentBaseURL = getEnvOrDefault("CIVICSENSE_INTENT_BASE_URL", p.IntentBaseURL)

	p.EmbeddingProvider = getEnvOrDefault("CIVICSENSE_EMBEDDING_PROVIDER", p.EmbeddingProvider)
	p.EmbeddingModel = getEnvOrDefault("CIVICSENSE_EMBEDDING_MODEL", p.EmbeddingModel)
	p.EmbeddingAPIKey = getEnvOrDefault("CIVICSENSE_EMBEDDING_API_KEY", p.EmbeddingAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("CIVICSENSE_EMBEDDING_BASE_URL", p.EmbeddingBaseURL)

	p.SafetyAPIKey = getEnvOrDefault("CIVICSENSE_SAFETY_API_KEY", p.SafetyAPIKey)
	p.SafetyBaseURL = getEnvOrDefault("CIVICSENSE_SAFETY_BASE_URL", p.SafetyBaseURL)

	p.ConfidenceThreshold = getEnvOrDefaultFloat("CIVICSENSE_CONFIDENCE_THRESHOLD", p.ConfidenceThreshold)
	p.RegenBudget = getEnvOrDefaultInt("CIVICSENSE_REGEN_BUDGET", p.RegenBudget)
	p.MaxClarifications = getEnvOrDefaultInt("CIVICSENSE_MAX_CLARIFICATIONS", p.MaxClarifications)
	p.CacheTTLHours = getEnvOrDefaultInt("CIVICSENSE_CACHE_TTL_HOURS", p.CacheTTLHours)
	p.LookupTimeout = getEnvOrDefaultInt("CIVICSENSE_LOOKUP_TIMEOUT", p.LookupTimeout)
	p.StoreTimeout = getEnvOrDefaultInt("CIVICSENSE_STORE_TIMEOUT", p.StoreTimeout)
	p.RetryAttempts = getEnvOrDefaultInt("CIVICSENSE_RETRY_ATTEMPTS", p.RetryAttempts)
	p.AllowedDomains = getEnvOrDefault("CIVICSENSE_ALLOWED_DOMAINS", p.AllowedDomains)
	p.DefaultLang = getEnvOrDefault("CIVICSENSE_DEFAULT_LANG", p.DefaultLang)
}

// Validate checks the profile and fills derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	switch p.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return errors.Errorf("unsupported store driver %q", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.Data == "" && p.Driver == "sqlite" {
		dir, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "get working directory")
		}
		p.Data = dir
	}
	if p.Data != "" {
		if err := os.MkdirAll(p.Data, 0o770); err != nil {
			return errors.Wrapf(err, "create data directory %q", p.Data)
		}
	}

	if p.DefaultLang == "" {
		p.DefaultLang = "en"
	}
	if p.Port <= 0 {
		p.Port = 28091
	}
	return nil
}
