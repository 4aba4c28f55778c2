package ai

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures a grading provider.
type ProviderConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float32
	RecomputeScore bool
	Logger         zerolog.Logger
}

// NewGrader builds the grader named by cfg.Provider ("openai" or "anthropic").
func NewGrader(cfg ProviderConfig) (Grader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "gemini":
		return NewOpenAIGrader(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			RecomputeScore: cfg.RecomputeScore,
			Logger:         cfg.Logger,
		})
	case "anthropic":
		return NewAnthropicGrader(AnthropicConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			RecomputeScore: cfg.RecomputeScore,
			Logger:         cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
