// Package humaninput serves the agents' human-input requests through the
// chat UI's ask primitives.
package humaninput

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/pkg/metrics"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Action values offered when the runtime asks for feedback.
const (
	ActionContinue = "continue"
	ActionFeedback = "feedback"
	ActionExit     = "exit"
)

// FeedbackQuestion is the content of the action ask.
const FeedbackQuestion = "Continue or provide feedback?"

// FeedbackActions are the choices shown for a feedback prompt.
var FeedbackActions = []ui.Action{
	{Name: ActionContinue, Value: ActionContinue, Label: "✅ Continue"},
	{Name: ActionFeedback, Value: ActionFeedback, Label: "💬 Provide feedback"},
	{Name: ActionExit, Value: ActionExit, Label: "🔚 Exit Conversation"},
}

var feedbackPattern = regexp.MustCompile(`^Provide feedback to \S+\. Press enter to skip and use auto-reply`)

// IsFeedbackPrompt reports whether prompt is the runtime's feedback question.
func IsFeedbackPrompt(prompt string) bool {
	return feedbackPattern.MatchString(prompt)
}

var errNoResult = errors.New("ask returned no result")

// Bridge implements agent.HumanInput over a ui.Asker.
type Bridge struct {
	asker       ui.Asker
	timeout     time.Duration
	maxAttempts int
	retryWait   time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Bridge
type Option func(*Bridge)

// WithTimeout bounds each ask
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMaxAttempts bounds how often an ask with no result is repeated
func WithMaxAttempts(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithRetryWait sets the pause between repeated asks
func WithRetryWait(d time.Duration) Option {
	return func(b *Bridge) { b.retryWait = d }
}

// WithMetrics counts asks by kind
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithLogger sets the bridge logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a bridge asking through asker.
func New(asker ui.Asker, opts ...Option) *Bridge {
	b := &Bridge{
		asker:       asker,
		timeout:     60 * time.Second,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.WithComponent("humaninput")
	}
	return b
}

// GetHumanInput answers prompt from the UI. Feedback prompts are first offered
// as an action choice; continue yields "", exit yields "exit", and feedback
// falls through to a free-text ask. The result is trimmed.
func (b *Bridge) GetHumanInput(ctx context.Context, prompt string) (string, error) {
	if IsFeedbackPrompt(prompt) {
		resp, err := b.ask(ctx, "action", func(ctx context.Context) (*ui.Response, error) {
			return b.asker.AskAction(ctx, ui.ActionRequest{
				Content: FeedbackQuestion,
				Actions: FeedbackActions,
				Timeout: b.timeout,
			})
		})
		if err != nil {
			return "", err
		}
		switch strings.TrimSpace(resp.Value) {
		case ActionContinue:
			return "", nil
		case ActionExit:
			return message.ExitPhrase, nil
		}
	}

	resp, err := b.ask(ctx, "text", func(ctx context.Context) (*ui.Response, error) {
		return b.asker.AskText(ctx, ui.TextRequest{Content: prompt, Timeout: b.timeout})
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Value), nil
}

// ask repeats call while it yields no result, up to maxAttempts times.
func (b *Bridge) ask(ctx context.Context, kind string, call func(context.Context) (*ui.Response, error)) (*ui.Response, error) {
	b.metrics.HumanInput(kind)
	attempt := 0

	resp, err := backoff.Retry(ctx, func() (*ui.Response, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		r, err := call(attemptCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, errNoResult
			}
			return nil, backoff.Permanent(err)
		}
		if r == nil {
			b.logger.DebugContext(ctx, "ask returned no result", "kind", kind, "attempt", attempt)
			return nil, errNoResult
		}
		return r, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(b.retryWait)),
		backoff.WithMaxTries(uint(b.maxAttempts)),
	)
	if err != nil {
		if errors.Is(err, errNoResult) {
			b.logger.WarnContext(ctx, "human input timed out", "kind", kind, "attempts", attempt)
			return nil, fmt.Errorf("%w: %s ask unanswered after %d attempts", errorskg.ErrInputTimeout, kind, attempt)
		}
		return nil, fmt.Errorf("humaninput: %s ask: %w", kind, err)
	}
	return resp, nil
}
