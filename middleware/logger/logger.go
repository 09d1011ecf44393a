package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/ai-groupchat/middleware"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

// SendLogger logs every send with its routing and outcome.
type SendLogger struct {
	logger *slog.Logger
}

// NewSendLogger creates a logging middleware. A nil logger uses the shared one.
func NewSendLogger(logger *slog.Logger) *SendLogger {
	if logger == nil {
		logger = logging.WithComponent("send")
	}
	return &SendLogger{logger: logger}
}

// Name returns the middleware name
func (m *SendLogger) Name() string {
	return "SendLogger"
}

// Execute logs the send after downstream handlers complete
func (m *SendLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	err := next(ctx)

	attrs := []any{
		"sender", ctx.Sender,
		"recipient", ctx.Recipient,
		"bytes", len(ctx.Content()),
		"duration", time.Since(start),
	}
	if err != nil {
		m.logger.ErrorContext(ctx.Context(), "send failed", append(attrs, "error", err)...)
		return err
	}
	m.logger.DebugContext(ctx.Context(), "message sent", attrs...)
	return nil
}
