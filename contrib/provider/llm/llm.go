// Package llm builds a model client from a session's model configuration.
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/config"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider/claude"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider/gemini"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider/openai"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
)

// Vendors
const (
	VendorOpenAI = "openai"
	VendorClaude = "claude"
	VendorGemini = "gemini"
)

// Vendor picks the provider for a model name. Unrecognised names go to the
// OpenAI client, which also serves compatible endpoints through BaseURL.
func Vendor(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return VendorClaude
	case strings.HasPrefix(m, "gemini"):
		return VendorGemini
	default:
		return VendorOpenAI
	}
}

// Client is a retrying model client.
type Client struct {
	*provider.Retrying
	model  string
	vendor string
	closer io.Closer
}

// Model returns the model name.
func (c *Client) Model() string { return c.model }

// Vendor returns the provider serving the model.
func (c *Client) Vendor() string { return c.vendor }

// Close releases provider resources, if any.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// New creates a client for cfg wrapped in retries of cfg.RetryWait and
// cfg.MaxRetries.
func New(ctx context.Context, cfg config.ModelConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", errorskg.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required for model %s", errorskg.ErrInvalidConfig, cfg.Model)
	}

	var (
		inner  agent.LLMClient
		closer io.Closer
	)
	vendor := Vendor(cfg.Model)
	switch vendor {
	case VendorClaude:
		c := claude.DefaultConfig(cfg.APIKey, cfg.BaseURL)
		c.Model = cfg.Model
		c.Temperature = cfg.Temperature
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int64(cfg.MaxTokens)
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		inner = claude.New(c)
	case VendorGemini:
		c := gemini.DefaultConfig(cfg.APIKey)
		c.Model = cfg.Model
		c.BaseURL = cfg.BaseURL
		c.Temperature = float32(cfg.Temperature)
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int32(cfg.MaxTokens)
		}
		p, err := gemini.New(ctx, c)
		if err != nil {
			return nil, err
		}
		inner, closer = p, p
	default:
		c := openai.DefaultConfig()
		c.APIKey = cfg.APIKey
		c.BaseURL = cfg.BaseURL
		c.Model = cfg.Model
		c.Temperature = cfg.Temperature
		c.Seed = cfg.CacheSeed
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int64(cfg.MaxTokens)
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		inner = openai.New(c)
	}

	return &Client{
		Retrying: provider.NewRetrying(inner, cfg.RetryWait, cfg.MaxRetries),
		model:    cfg.Model,
		vendor:   vendor,
		closer:   closer,
	}, nil
}
