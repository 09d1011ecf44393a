// Package relay mirrors every inter-agent send into the chat transcript.
package relay

import (
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/ai-groupchat/middleware"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/pkg/metrics"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Format renders the transcript line for a send to recipient.
func Format(recipient, content string) string {
	return fmt.Sprintf("Sending message to \"%s\": %s", recipient, content)
}

// Relay is a send middleware that publishes one entry authored by the sender
// and then delegates unchanged.
type Relay struct {
	pub       ui.Publisher
	sessionID string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Relay
type Option func(*Relay)

// WithSessionID stamps published entries with the session id
func WithSessionID(id string) Option {
	return func(r *Relay) { r.sessionID = id }
}

// WithMetrics counts relayed messages per sender
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithLogger sets the relay logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a relay publishing to pub.
func New(pub ui.Publisher, opts ...Option) *Relay {
	r := &Relay{pub: pub}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("relay")
	}
	return r
}

// Name returns the middleware name
func (r *Relay) Name() string {
	return "MessageRelay"
}

// Execute publishes the send to the transcript, then continues the chain.
// A failed publish is logged; delivery still proceeds.
func (r *Relay) Execute(ctx *middleware.Context, next middleware.Handler) error {
	entry := ui.NewEntry(ctx.Sender, Format(ctx.Recipient, ctx.Content()))
	entry.SessionID = r.sessionID

	if err := r.pub.Publish(ctx.Context(), entry); err != nil {
		r.logger.WarnContext(ctx.Context(), "publish relay entry failed",
			"session_id", r.sessionID, "sender", ctx.Sender, "error", err)
	} else {
		r.metrics.Relayed(ctx.Sender)
	}
	return next(ctx)
}
