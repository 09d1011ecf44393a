package middleware

import (
	"context"

	"github.com/sweetpotato0/ai-groupchat/message"
)

// Context carries one send through the middleware chain.
type Context struct {
	// Sender is the name of the agent sending the message
	Sender string

	// Recipient is the name of the receiving agent or manager
	Recipient string

	// Message being delivered
	Message *message.Message

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a middleware context for a send from sender to recipient.
func NewContext(ctx context.Context, sender, recipient string, msg *message.Message) *Context {
	return &Context{
		Sender:    sender,
		Recipient: recipient,
		Message:   msg,
		Metadata:  make(map[string]any),
		context:   ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Content returns the message content, or "" when no message is attached.
func (c *Context) Content() string {
	if c.Message == nil {
		return ""
	}
	return c.Message.Content
}

// Middleware intercepts a send before it reaches the recipient.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic. Calling next continues the chain;
	// returning without calling it drops the send.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// Func adapts a function to the Middleware interface.
type Func struct {
	name string
	fn   func(*Context, Handler) error
}

// NewFunc wraps fn as a named middleware.
func NewFunc(name string, fn func(*Context, Handler) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Execute(ctx *Context, next Handler) error {
	return f.fn(ctx, next)
}

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Len returns the number of middlewares in the chain
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Names lists middleware names in execution order
func (c *MiddlewareChain) Names() []string {
	names := make([]string, 0, len(c.middlewares))
	for _, m := range c.middlewares {
		names = append(names, m.Name())
	}
	return names
}

// Execute runs all middlewares in the chain, then finalHandler
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}
