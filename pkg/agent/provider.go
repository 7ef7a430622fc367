package agent

import (
	"context"
	"fmt"
)

// Provider is the boundary to the external language model. The engine
// treats it as opaque: ordered messages in, text or tool calls out.
type Provider interface {
	// Call makes a model API call
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name
	Provider() string
}

// NewProvider creates a provider by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
