package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/landlord/config"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	gemini_provider "github.com/mohammad-safakhou/landlord/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/landlord/provider/openai"
	"go.uber.org/zap"
)

// Client names a completion backend
type Client string

const (
	Mistral Client = "mistral"
	OpenAI  Client = "openai"
	Gemini  Client = "gemini"
)

// ErrMissingAPIKey is returned when the selected provider has no key configured.
var ErrMissingAPIKey = errors.New("llm.api_key not set")

// NewCompleter builds the completion client selected by cfg.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (core.Completer, error) {
	cfg = cfg.Normalize()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	switch Client(cfg.Provider) {
	case Mistral, OpenAI:
		fallback := openai_provider.MistralAPIURL
		if Client(cfg.Provider) == OpenAI {
			fallback = openai_provider.OpenAIAPIURL
		}
		return openai_provider.New(openai_provider.Options{
			APIKey:      cfg.APIKey,
			Endpoint:    openai_provider.Endpoint(cfg.BaseURL, fallback),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			Logger:      logger,
		}), nil
	case Gemini:
		c, err := gemini_provider.New(ctx, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
