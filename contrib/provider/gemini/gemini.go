package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider"
	"github.com/sweetpotato0/ai-groupchat/message"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:    apiKey,
		Model:     "gemini-1.5-flash",
		MaxTokens: 2048,
	}
}

// Provider implements agent.LLMClient for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a Gemini provider. Close releases the client.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Generate implements agent.LLMClient
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	turns := provider.Alternate(req.Messages)
	if len(turns) == 0 {
		return nil, provider.Permanent(fmt.Errorf("gemini: request has no messages"))
	}

	model := p.client.GenerativeModel(p.config.Model)
	model.SetTemperature(p.config.Temperature)
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	// the chat history must end with a model turn, so the newest user turn
	// is sent as the message
	cs := model.StartChat()
	last := turns[len(turns)-1]
	history := turns[:len(turns)-1]
	if last.Assistant {
		history = turns
		last = provider.Turn{Text: "Continue."}
	}
	for _, t := range history {
		role := "user"
		if t.Assistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Text)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last.Text))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, provider.Classify(apiErr.Code, fmt.Errorf("Gemini API error: %w", err))
		}
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text.String())}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = agent.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.config.Model
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}
