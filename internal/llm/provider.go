package llm

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

// DefaultOrder is the provider order used when the configuration does not name one.
var DefaultOrder = []string{ProviderAzure, ProviderOpenAI, ProviderGemini}

var ErrEmptyResponse = errors.New("provider returned an empty response")

// Params are the per-call generation parameters. Zero values mean "not set"
// so that they can be layered over provider defaults.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Over returns p with every unset field taken from base.
func (p Params) Over(base Params) Params {
	out := p
	if out.Model == "" {
		out.Model = base.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = base.MaxTokens
	}
	if out.Temperature == nil {
		out.Temperature = base.Temperature
	}
	return out
}

// Request is one text generation call as seen by a provider. Params are
// already merged by the gateway.
type Request struct {
	Prompt   string
	System   string
	Provider string
	Params   Params
	JSONMode bool
}

// Provider is a pluggable text generation backend. Implementations are
// read-only after construction and safe for concurrent use.
type Provider interface {
	Name() string
	Defaults() Params
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderConfig carries credentials and defaults for one provider.
type ProviderConfig struct {
	Name        string
	APIKey      string
	Endpoint    string
	Deployment  string
	APIVersion  string
	Model       string
	MaxTokens   int
	Temperature *float64
}

func (c ProviderConfig) defaults() Params {
	return Params{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

// ValidCredential rejects empty values and template placeholders such as
// YOUR_OPENAI_API_KEY or <api-key>.
func ValidCredential(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	u := strings.ToUpper(v)
	if strings.HasPrefix(u, "YOUR_") || strings.Contains(u, "_HERE") {
		return false
	}
	if strings.Contains(u, "YOUR_") && strings.Contains(u, "_KEY") {
		return false
	}
	if strings.HasPrefix(u, "<") && strings.HasSuffix(u, ">") {
		return false
	}
	return true
}

// Probe builds a provider for every configuration entry whose credentials are
// usable. Missing or placeholder credentials disable the provider; they never
// fail startup.
func Probe(ctx context.Context, configs []ProviderConfig, logger *zap.Logger) []Provider {
	providers := make([]Provider, 0, len(configs))
	for _, cfg := range configs {
		switch cfg.Name {
		case ProviderOpenAI:
			if !ValidCredential(cfg.APIKey) {
				logger.Info("OpenAI API key not configured or is a placeholder, provider disabled")
				continue
			}
			providers = append(providers, NewOpenAIProvider(cfg))
		case ProviderAzure:
			if !ValidCredential(cfg.APIKey) || !ValidCredential(cfg.Endpoint) || !ValidCredential(cfg.Deployment) {
				logger.Info("Azure OpenAI credentials incomplete or placeholders, provider disabled")
				continue
			}
			providers = append(providers, NewAzureProvider(cfg))
		case ProviderGemini:
			if !ValidCredential(cfg.APIKey) {
				logger.Info("Gemini API key not configured or is a placeholder, provider disabled")
				continue
			}
			p, err := NewGeminiProvider(ctx, cfg)
			if err != nil {
				logger.Error("Failed to initialize Gemini client", zap.Error(err))
				continue
			}
			providers = append(providers, p)
		default:
			logger.Warn("Unknown provider in configuration", zap.String("provider", cfg.Name))
			continue
		}
		logger.Info("Provider initialized", zap.String("provider", cfg.Name))
	}
	return providers
}
