package errorhandler

import (
	"fmt"

	"github.com/sweetpotato0/ai-groupchat/middleware"
)

// ErrorHandlerFunc handles errors
type ErrorHandlerFunc func(ctx *middleware.Context, err error) error

// ErrorHandler handles errors returned further down the chain
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware. A nil handler wraps
// errors with the send route.
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	if handler == nil {
		handler = WrapRoute
	}
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return m.handler(ctx, err)
	}
	return nil
}

// WrapRoute annotates err with the sender and recipient of the failed send.
func WrapRoute(ctx *middleware.Context, err error) error {
	return fmt.Errorf("send %s -> %s: %w", ctx.Sender, ctx.Recipient, err)
}
