// ABOUTME: Google Gemini generateContent client.
// ABOUTME: Roles map to user/model; the system prompt becomes systemInstruction.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"
	defaultGoogleModel   = "gemini-2.0-flash"
)

// GoogleConfig holds configuration for the Gemini provider.
type GoogleConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Google implements Provider using the Gemini generateContent API.
type Google struct {
	config GoogleConfig
}

// NewGoogle creates a Gemini provider with the given config.
func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.Model == "" {
		cfg.Model = defaultGoogleModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGoogleBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Google{config: cfg}
}

func (p *Google) Name() string { return "google" }

type googleRequest struct {
	SystemInstruction *googleContent  `json:"system_instruction,omitempty"`
	Contents          []googleContent `json:"contents"`
	GenerationConfig  googleGenConfig `json:"generationConfig"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type googleResponse struct {
	Candidates []googleCandidate `json:"candidates"`
	Error      *googleError      `json:"error,omitempty"`
}

type googleCandidate struct {
	Content googleContent `json:"content"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends the history to generateContent. Gemini speaks user/model
// rather than user/assistant, and takes the system prompt separately.
func (p *Google) Generate(ctx context.Context, messages []Message) (string, error) {
	var reqBody googleRequest
	reqBody.GenerationConfig = googleGenConfig{Temperature: defaultTemperature}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			reqBody.SystemInstruction = &googleContent{Parts: []googlePart{{Text: m.Content}}}
		case RoleAssistant:
			reqBody.Contents = append(reqBody.Contents, googleContent{
				Role: "model", Parts: []googlePart{{Text: m.Content}},
			})
		default:
			reqBody.Contents = append(reqBody.Contents, googleContent{
				Role: "user", Parts: []googlePart{{Text: m.Content}},
			})
		}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("google: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.config.BaseURL, p.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("google: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("google: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: "google", Status: resp.StatusCode, Body: string(body)}
	}

	var apiResp googleResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("google: unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("google: %s: %s", apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return "", fmt.Errorf("google: response has no candidates")
	}

	var parts []string
	for _, part := range apiResp.Candidates[0].Content.Parts {
		parts = append(parts, part.Text)
	}
	return strings.Join(parts, ""), nil
}
