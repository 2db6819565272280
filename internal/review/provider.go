// Package review produces an AI assessment of a triaged issue. A Provider
// abstracts the model API; the prompt builder folds the issue text and the
// language server findings into a grounded request.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/autotriage/internal/config"
)

var (
	// ErrNoAPIKey reports a provider selected without a credential.
	ErrNoAPIKey = errors.New("no api key configured")

	// ErrEmptyReply reports a model response with no usable text.
	ErrEmptyReply = errors.New("model returned no text")
)

// Request is one assessment request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider turns a request into assessment text.
type Provider interface {
	// Name identifies the backing service for logs and reports.
	Name() string

	// Complete sends the request and returns the model's text.
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.AIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrNoAPIKey)
	}

	switch cfg.Provider {
	case "anthropic":
		return newAnthropicProvider(cfg), nil
	case "openai":
		return newOpenAIProvider(cfg), nil
	case "gemini":
		return newGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
