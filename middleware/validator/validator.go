package validator

import (
	"fmt"

	"github.com/sweetpotato0/ai-groupchat/middleware"
)

// EnvelopeValidator rejects sends that have no message or no routing.
type EnvelopeValidator struct{}

// NewEnvelopeValidator creates the routing validation middleware
func NewEnvelopeValidator() *EnvelopeValidator {
	return &EnvelopeValidator{}
}

// Name returns the middleware name
func (m *EnvelopeValidator) Name() string {
	return "EnvelopeValidator"
}

// Execute validates the send envelope
func (m *EnvelopeValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.Message == nil {
		return middleware.ErrInvalidMessage
	}
	if ctx.Sender == "" || ctx.Recipient == "" {
		return fmt.Errorf("%w: sender %q recipient %q", middleware.ErrInvalidContext, ctx.Sender, ctx.Recipient)
	}
	return next(ctx)
}
