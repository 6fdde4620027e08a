// ABOUTME: Ollama chat client for locally hosted models.
// ABOUTME: Talks to an Ollama daemon, no API key required.

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
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2"
)

// OllamaConfig holds configuration for a local Ollama daemon.
type OllamaConfig struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Ollama implements Provider against the Ollama /api/chat endpoint.
type Ollama struct {
	config OllamaConfig
}

// NewOllama creates a local provider with the given config.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Ollama{config: cfg}
}

func (p *Ollama) Name() string { return "local" }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// Generate sends the conversation to the local daemon with streaming off.
func (p *Ollama) Generate(ctx context.Context, messages []Message) (string, error) {
	reqBody := ollamaRequest{
		Model:   p.config.Model,
		Stream:  false,
		Options: ollamaOptions{Temperature: defaultTemperature},
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("local: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("local: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("local: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("local: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: "local", Status: resp.StatusCode, Body: string(body)}
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("local: unmarshal response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("local: %s", apiResp.Error)
	}
	return apiResp.Message.Content, nil
}
