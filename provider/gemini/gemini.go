package gemini_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"google.golang.org/genai"
)

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a Completer backed by the Gemini API.
type Client struct {
	models      generator
	model       string
	temperature float32
	maxTokens   int32
}

// New creates a Gemini client authenticated with apiKey.
func New(ctx context.Context, apiKey, model string, temperature float64, maxTokens int) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{
		models:      client.Models,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}, nil
}

// Complete maps system turns to the system instruction and the rest to
// user/model contents.
func (c *Client) Complete(ctx context.Context, turns []core.Turn) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			system = append(system, t.Content)
		case core.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", core.Malformed(errors.New("no user turn to send"))
	}

	temp := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: c.maxTokens,
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	res, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", core.Unavailable(fmt.Errorf("gemini generate content: %w", err))
	}
	if res == nil {
		return "", core.Malformed(errors.New("gemini returned no response"))
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", core.Malformed(errors.New("gemini returned empty text"))
	}
	return text, nil
}
