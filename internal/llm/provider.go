package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anubhavtomargaya/agent-eval/internal/config"
)

// ErrEmbeddingsUnsupported is returned by providers that cannot produce
// embeddings. Callers degrade to a zero vector rather than failing.
var ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")

type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

type Message struct {
	Role    string
	Content string
}

type CompletionResponse struct {
	Content      string
	FinishReason string
	ModelName    string
	Usage        Usage
	Latency      time.Duration
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client struct {
	providers       map[string]Provider
	defaultProvider string
	timeout         time.Duration
}

func NewClient(cfg *config.LLMConfig) (*Client, error) {
	c := &Client{
		providers:       make(map[string]Provider),
		defaultProvider: cfg.DefaultProvider,
		timeout:         cfg.Timeout,
	}

	if cfg.OpenAIAPIKey != "" {
		c.providers["openai"] = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	}

	if cfg.AnthropicAPIKey != "" {
		c.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicAPIKey)
	}

	if cfg.OllamaBaseURL != "" {
		c.providers["ollama"] = NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel)
	}

	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	if _, ok := c.providers[c.defaultProvider]; !ok {
		for name := range c.providers {
			c.defaultProvider = name
			break
		}
	}

	return c, nil
}

// Complete runs the request against the default provider, falling back to the
// remaining configured providers when it fails.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return c.CompleteWithFallback(ctx, req)
}

func (c *Client) CompleteWithProvider(ctx context.Context, providerName string, req *CompletionRequest) (*CompletionResponse, error) {
	provider, ok := c.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("provider %s not found", providerName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return provider.Complete(ctx, req)
}

// Embed returns a vector for text from the default provider. Providers
// without embedding support surface ErrEmbeddingsUnsupported.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	provider, ok := c.providers[c.defaultProvider]
	if !ok {
		return nil, fmt.Errorf("provider %s not found", c.defaultProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return provider.Embed(ctx, text)
}

// CompleteWithFallback tries the default provider first, then each remaining
// provider until one succeeds.
func (c *Client) CompleteWithFallback(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.CompleteWithProvider(ctx, c.defaultProvider, req)
	if err == nil {
		return resp, nil
	}
	lastErr := fmt.Errorf("%s: %w", c.defaultProvider, err)

	for name := range c.providers {
		if name == c.defaultProvider {
			continue
		}
		resp, err := c.CompleteWithProvider(ctx, name, req)
		if err == nil {
			return resp, nil
		}
		lastErr = fmt.Errorf("%s: %w", name, err)
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}
