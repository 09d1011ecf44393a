package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider"
	"github.com/sweetpotato0/ai-groupchat/message"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	Seed        int64
	Timeout     time.Duration
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
		Timeout:   120 * time.Second,
	}
}

// Provider implements agent.LLMClient for OpenAI-compatible chat APIs.
type Provider struct {
	config *Config
	client openaisdk.Client
}

// New creates a new OpenAI provider. Retries are left to the caller.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = string(openaisdk.ChatModelGPT4oMini)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return &Provider{
		config: config,
		client: openaisdk.NewClient(opts...),
	}
}

// Generate implements agent.LLMClient
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return nil, provider.Classify(apiErr.StatusCode, fmt.Errorf("OpenAI API error: %w", err))
		}
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content),
		Usage: agent.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) params(req *agent.GenerateRequest) openaisdk.ChatCompletionNewParams {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		switch m.Role {
		case message.RoleSystem:
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		case message.RoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openaisdk.ChatModel(p.config.Model),
		Temperature: openaisdk.Float(p.config.Temperature),
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(p.config.MaxTokens)
	}
	if p.config.Seed != 0 {
		params.Seed = openaisdk.Int(p.config.Seed)
	}
	return params
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.config.Model
}
