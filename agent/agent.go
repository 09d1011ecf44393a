package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/middleware"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

// FeedbackPrompt is the question put to the human before an auto-reply.
func FeedbackPrompt(sender string) string {
	return fmt.Sprintf("Provide feedback to %s. Press enter to skip and use auto-reply, or type '%s' to end the conversation: ", sender, message.ExitPhrase)
}

// Agent is a named participant of a group conversation. Its spec is fixed at
// construction; all sends pass through its middleware chain.
type Agent struct {
	spec             Spec
	llm              LLMClient
	human            HumanInput
	executor         CodeExecutor
	tokens           TokenCounter
	maxContextTokens int
	middlewares      *middleware.MiddlewareChain
	logger           *slog.Logger
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithSystemPrompt sets the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.spec.SystemPrompt = prompt
	}
}

// WithDescription sets the description used during speaker selection
func WithDescription(desc string) Option {
	return func(a *Agent) {
		a.spec.Description = desc
	}
}

// WithHumanInputMode overrides when the agent asks the human
func WithHumanInputMode(mode HumanInputMode) Option {
	return func(a *Agent) {
		a.spec.HumanInputMode = mode
	}
}

// WithProvider sets the model client
func WithProvider(provider LLMClient) Option {
	return func(a *Agent) {
		a.llm = provider
	}
}

// WithHumanInput sets the source of human replies
func WithHumanInput(h HumanInput) Option {
	return func(a *Agent) {
		a.human = h
	}
}

// WithCodeExecutor sets the executor used for auto-replies
func WithCodeExecutor(e CodeExecutor) Option {
	return func(a *Agent) {
		a.executor = e
	}
}

// WithTokenLimit trims model context to limit tokens as measured by counter
func WithTokenLimit(counter TokenCounter, limit int) Option {
	return func(a *Agent) {
		a.tokens = counter
		a.maxContextTokens = limit
	}
}

// WithMiddleware adds a middleware to the send chain
func WithMiddleware(m middleware.Middleware) Option {
	return func(a *Agent) {
		if m != nil {
			a.middlewares.Add(m)
		}
	}
}

// WithLogger sets the agent logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an agent of the given role. Role defaults apply before opts.
func New(name string, role Role, opts ...Option) (*Agent, error) {
	a := &Agent{
		spec:        defaultSpec(name, role),
		middlewares: middleware.NewChain(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.WithComponent("agent")
	}
	a.logger = a.logger.With("agent", name, "role", role.String())

	if err := a.spec.Validate(); err != nil {
		return nil, err
	}
	caps := a.spec.Capabilities
	if caps.CallModel && a.llm == nil {
		return nil, fmt.Errorf("agent %s: model access enabled without a provider", name)
	}
	if caps.ExecuteCode && a.executor == nil {
		return nil, fmt.Errorf("agent %s: code execution enabled without an executor", name)
	}
	if caps.RequestHumanInput && a.spec.HumanInputMode != HumanInputNever && a.human == nil {
		return nil, fmt.Errorf("agent %s: human input enabled without a source", name)
	}
	return a, nil
}

func (a *Agent) Name() string        { return a.spec.Name }
func (a *Agent) Role() Role          { return a.spec.Role }
func (a *Agent) Description() string { return a.spec.Description }

// Spec returns a copy of the agent's immutable configuration.
func (a *Agent) Spec() Spec { return a.spec }

// Middlewares returns the send chain
func (a *Agent) Middlewares() *middleware.MiddlewareChain {
	return a.middlewares
}

// NewMessage builds a message authored by this agent.
func (a *Agent) NewMessage(content string) *message.Message {
	return message.From(a.spec.Name, a.spec.Role.MessageRole(), content)
}

// Send delivers msg to recipient through the middleware chain.
func (a *Agent) Send(ctx context.Context, msg *message.Message, to Recipient) error {
	if to == nil {
		return fmt.Errorf("agent %s: recipient cannot be nil", a.spec.Name)
	}
	if msg != nil {
		if msg.Name == "" {
			msg.Name = a.spec.Name
		}
		msg.Recipient = to.Name()
	}

	mwCtx := middleware.NewContext(ctx, a.spec.Name, to.Name(), msg)
	return a.middlewares.Execute(mwCtx, func(c *middleware.Context) error {
		return to.Receive(c.Context(), c.Message)
	})
}

// Reply produces the agent's next message given the conversation so far.
// sender is the party asking for the reply. A nil message means the agent passes.
func (a *Agent) Reply(ctx context.Context, history []*message.Message, sender string) (*message.Message, error) {
	if a.shouldAskHuman(history) {
		text, err := a.human.GetHumanInput(ctx, FeedbackPrompt(sender))
		if err != nil {
			return nil, fmt.Errorf("agent %s: human input: %w", a.spec.Name, err)
		}
		switch {
		case text == message.ExitPhrase:
			return a.NewMessage(message.ExitPhrase).WithSource(message.SourceHuman), nil
		case text != "":
			return a.NewMessage(text).WithSource(message.SourceHuman), nil
		}
		a.logger.DebugContext(ctx, "human skipped, using auto-reply")
	}
	return a.autoReply(ctx, history)
}

func (a *Agent) shouldAskHuman(history []*message.Message) bool {
	if !a.spec.Capabilities.RequestHumanInput || a.human == nil {
		return false
	}
	switch a.spec.HumanInputMode {
	case HumanInputAlways:
		return true
	case HumanInputTerminate:
		return len(history) > 0 && history[len(history)-1].IsTermination()
	default:
		return false
	}
}

func (a *Agent) autoReply(ctx context.Context, history []*message.Message) (*message.Message, error) {
	caps := a.spec.Capabilities

	if caps.ExecuteCode && a.executor != nil {
		out, found, err := a.executor.ExecuteLatest(ctx, history)
		if err != nil {
			return nil, fmt.Errorf("agent %s: execute code: %w", a.spec.Name, err)
		}
		if found {
			return a.NewMessage(out).WithSource(message.SourceCode), nil
		}
	}

	if caps.CallModel && a.llm != nil {
		resp, err := a.llm.Generate(ctx, a.buildRequest(history))
		if err != nil {
			return nil, fmt.Errorf("agent %s: generate: %w", a.spec.Name, err)
		}
		if resp == nil || resp.Message == nil {
			return nil, fmt.Errorf("agent %s: provider returned no message", a.spec.Name)
		}
		a.logger.DebugContext(ctx, "model reply",
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
		return a.NewMessage(strings.TrimSpace(resp.Message.Content)).WithSource(message.SourceModel), nil
	}

	return nil, nil
}

// buildRequest maps the shared history to this agent's point of view: its own
// messages are assistant turns, everyone else's are user turns.
func (a *Agent) buildRequest(history []*message.Message) *GenerateRequest {
	msgs := make([]*message.Message, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		c := message.Clone(m)
		if c.Name == a.spec.Name {
			c.Role = message.RoleAssistant
		} else {
			c.Role = message.RoleUser
		}
		msgs = append(msgs, c)
	}
	return &GenerateRequest{
		SystemPrompt: a.spec.SystemPrompt,
		Messages:     fitWindow(a.tokens, a.maxContextTokens, a.spec.SystemPrompt, msgs),
	}
}
