// Package provider holds what the model providers share: conversion of a
// group chat request into alternating turns and retry around model calls.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

// Turn is one side of a two-party exchange.
type Turn struct {
	Assistant bool
	Text      string
}

// Alternate folds the request history into strictly alternating turns that
// start with the user. System messages inside the history count as user
// turns; consecutive turns of one side are joined.
func Alternate(msgs []*message.Message) []Turn {
	var turns []Turn
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		assistant := m.Role == message.RoleAssistant
		if len(turns) == 0 && assistant {
			turns = append(turns, Turn{Text: "Continue the conversation."})
		}
		if n := len(turns); n > 0 && turns[n-1].Assistant == assistant {
			turns[n-1].Text += "\n\n" + m.Content
			continue
		}
		turns = append(turns, Turn{Assistant: assistant, Text: m.Content})
	}
	return turns
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Classify wraps err as permanent unless the HTTP status suggests a retry
// may succeed. A zero status means the request never got an answer.
func Classify(status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case status == 0,
		status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooManyRequests,
		status >= 500:
		return err
	default:
		return Permanent(err)
	}
}

// Retrying retries a client's transient failures with a constant wait.
type Retrying struct {
	inner      agent.LLMClient
	wait       time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewRetrying wraps inner. maxRetries counts retries after the first attempt.
func NewRetrying(inner agent.LLMClient, wait time.Duration, maxRetries int) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		inner:      inner,
		wait:       wait,
		maxRetries: maxRetries,
		logger:     logging.WithComponent("provider"),
	}
}

// Generate calls the wrapped client until it succeeds, fails permanently, or
// runs out of attempts.
func (r *Retrying) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*agent.GenerateResponse, error) {
		attempt++
		resp, err := r.inner.Generate(ctx, req)
		if err != nil && attempt <= r.maxRetries {
			r.logger.WarnContext(ctx, "model call failed", "attempt", attempt, "error", err)
		}
		return resp, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.wait)),
		backoff.WithMaxTries(uint(r.maxRetries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("model call failed after %d attempt(s): %w", attempt, err)
	}
	return resp, nil
}
