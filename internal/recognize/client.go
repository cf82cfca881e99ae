// Package recognize sends page images to a vision model and returns the
// transcribed Markdown.
package recognize

import (
	"context"
	"fmt"

	"github.com/dgallion1/cpextract/internal/config"
)

// Request is one page image plus the instruction text that goes with it.
type Request struct {
	Image    []byte
	MIMEType string
	Prompt   string
}

func (r Request) mimeType() string {
	if r.MIMEType == "" {
		return "image/png"
	}
	return r.MIMEType
}

// Client performs a single recognition call. Implementations return the reply
// text verbatim and report transient failures as *RetryableError.
type Client interface {
	Recognize(ctx context.Context, req Request) (string, error)
	Model() string
	Close() error
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.Config) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Timeout), nil
	case config.ProviderAnthropic:
		baseURL := cfg.BaseURL
		if baseURL == config.Default().BaseURL {
			baseURL = DefaultAnthropicURL
		}
		return NewAnthropicClient(cfg.APIKey, baseURL, cfg.Model, cfg.MaxTokens, cfg.Timeout), nil
	case config.ProviderVertex:
		return NewVertexClient(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.Model, cfg.MaxTokens, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
