package agent

import (
	"context"

	"github.com/sweetpotato0/ai-groupchat/message"
)

// LLMClient defines the interface for model providers
type LLMClient interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for a model invocation.
type GenerateRequest struct {
	SystemPrompt string
	Messages     []*message.Message
}

// GenerateResponse captures the model reply.
type GenerateResponse struct {
	Message *message.Message
	Usage   Usage
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// HumanInput obtains text from the person at the UI.
type HumanInput interface {
	GetHumanInput(ctx context.Context, prompt string) (string, error)
}

// CodeExecutor runs code blocks found in recent conversation messages.
// found is false when no executable block was present.
type CodeExecutor interface {
	ExecuteLatest(ctx context.Context, history []*message.Message) (output string, found bool, err error)
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// Recipient is anything an agent can send a message to.
type Recipient interface {
	Name() string
	Receive(ctx context.Context, msg *message.Message) error
}
