// ABOUTME: OpenAI chat-completions client, also serving OpenRouter.
// ABOUTME: Hand-written HTTP client against /v1/chat/completions.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
	openRouterBaseURL    = "https://openrouter.ai/api"
	defaultTemperature   = 0.7
)

// OpenAIConfig holds configuration for the OpenAI-compatible providers.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI implements Provider using the chat-completions API. The same
// client serves OpenRouter, which speaks the identical protocol on its own
// base URL.
type OpenAI struct {
	name   string
	config OpenAIConfig
}

// NewOpenAI creates an OpenAI provider with the given config.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &OpenAI{name: "openai", config: cfg}
}

// NewOpenRouter creates a provider for OpenRouter's OpenAI-compatible API.
func NewOpenRouter(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	p := NewOpenAI(cfg)
	p.name = "openrouter"
	return p
}

func (p *OpenAI) Name() string { return p.name }

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Generate sends the history to the chat-completions endpoint and returns
// the first choice's content.
func (p *OpenAI) Generate(ctx context.Context, messages []Message) (string, error) {
	reqBody := openaiRequest{
		Model:       p.config.Model,
		Temperature: defaultTemperature,
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: send request: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: p.name, Status: resp.StatusCode, Body: string(body)}
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%s: unmarshal response: %w", p.name, err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("%s: %s: %s", p.name, apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", p.name)
	}
	return apiResp.Choices[0].Message.Content, nil
}
