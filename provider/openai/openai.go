package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"go.uber.org/zap"
)

const (
	MistralAPIURL = "https://api.mistral.ai/v1/chat/completions"
	OpenAIAPIURL  = "https://api.openai.com/v1/chat/completions"
)

// Client talks to an OpenAI-compatible chat completions endpoint. Mistral and
// OpenAI share the wire format.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *zap.Logger
}

// Options configures a Client.
type Options struct {
	APIKey      string
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// New creates a chat completions client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = MistralAPIURL
	}
	return &Client{
		apiKey:      opts.APIKey,
		endpoint:    endpoint,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  hc,
		logger:      logger.Named("llm"),
	}
}

// Endpoint resolves a configured base URL to the chat completions URL.
func Endpoint(baseURL, fallback string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case baseURL == "":
		return fallback
	case strings.HasSuffix(baseURL, "/chat/completions"):
		return baseURL
	default:
		return baseURL + "/chat/completions"
	}
}

func roleOf(r core.Role) string {
	switch r {
	case core.RoleHuman:
		return "user"
	case core.RoleAssistant:
		return "assistant"
	default:
		return "system"
	}
}

// Complete sends turns once. Transport failures and non-200 statuses are
// ServiceUnavailable; undecodable or empty bodies are MalformedResponse.
func (c *Client) Complete(ctx context.Context, turns []core.Turn) (string, error) {
	if len(turns) == 0 {
		return "", core.Malformed(errors.New("no turns to send"))
	}
	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, Message{Role: roleOf(t.Role), Content: t.Content})
	}
	return c.sendRequest(ctx, messages)
}

func (c *Client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	jsonData, err := json.Marshal(request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", core.Malformed(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", core.Unavailable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.Unavailable(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", core.Unavailable(fmt.Errorf("failed to read response body: %w", err))
	}
	c.logger.Debug("completion response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("model", c.model))

	if resp.StatusCode != http.StatusOK {
		return "", core.Unavailable(fmt.Errorf("API returned status %d: %s", resp.StatusCode, snippet(body)))
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", core.Malformed(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", core.Malformed(errors.New("no choices in response"))
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", core.Malformed(errors.New("empty completion"))
	}
	return content, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
