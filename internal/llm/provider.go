// ABOUTME: Provider abstraction over the supported LLM backends.
// ABOUTME: One capability behind one interface: turn a message history into a reply.

package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Message roles in provider requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one line of the prompt sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Provider is a text-generation backend. Implementations translate the
// message history into their own wire protocol and return the reply text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // openai | anthropic | google | openrouter | local
	Model    string
	APIKey   string
	Endpoint string // base URL override, optional
	Client   *http.Client
}

// NewProvider constructs the provider for the selected backend.
func NewProvider(opts Options) (Provider, error) {
	switch opts.Backend {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			BaseURL:    opts.Endpoint,
			HTTPClient: opts.Client,
		}), nil
	case "openrouter":
		return NewOpenRouter(OpenAIConfig{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			BaseURL:    opts.Endpoint,
			HTTPClient: opts.Client,
		}), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			BaseURL:    opts.Endpoint,
			HTTPClient: opts.Client,
		}), nil
	case "google":
		return NewGoogle(GoogleConfig{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			BaseURL:    opts.Endpoint,
			HTTPClient: opts.Client,
		}), nil
	case "local":
		return NewOllama(OllamaConfig{
			Model:      opts.Model,
			BaseURL:    opts.Endpoint,
			HTTPClient: opts.Client,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", opts.Backend)
	}
}
