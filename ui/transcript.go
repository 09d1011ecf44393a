package ui

import (
	"context"
	"sync"
)

// Transcript is an in-memory Channel. It records every entry and answers asks
// from scripted queues, falling back to DefaultAction for action asks.
// It backs headless front ends and tests.
type Transcript struct {
	mu            sync.Mutex
	entries       []Entry
	actions       []string
	texts         []string
	asks          []string
	defaultAction string
}

// NewTranscript creates an empty transcript channel.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Publish records e.
func (t *Transcript) Publish(ctx context.Context, e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	return nil
}

// AskAction pops the next scripted action or returns DefaultAction. With
// neither it returns no result.
func (t *Transcript) AskAction(ctx context.Context, req ActionRequest) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.asks = append(t.asks, req.Content)
	if len(t.actions) > 0 {
		v := t.actions[0]
		t.actions = t.actions[1:]
		return &Response{Value: v}, nil
	}
	if t.defaultAction != "" {
		return &Response{Value: t.defaultAction}, nil
	}
	return nil, ctx.Err()
}

// AskText pops the next scripted text or returns no result.
func (t *Transcript) AskText(ctx context.Context, req TextRequest) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.asks = append(t.asks, req.Content)
	if len(t.texts) > 0 {
		v := t.texts[0]
		t.texts = t.texts[1:]
		return &Response{Value: v}, nil
	}
	return nil, ctx.Err()
}

// ScriptActions queues answers for upcoming action asks.
func (t *Transcript) ScriptActions(values ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, values...)
}

// ScriptTexts queues answers for upcoming text asks.
func (t *Transcript) ScriptTexts(values ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, values...)
}

// SetDefaultAction sets the answer used once scripted actions run out.
func (t *Transcript) SetDefaultAction(value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultAction = value
}

// Entries returns a copy of every recorded entry.
func (t *Transcript) Entries() []Entry {
	return t.Since(0)
}

// Since returns entries recorded at or after index i.
func (t *Transcript) Since(i int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i >= len(t.entries) {
		return nil
	}
	out := make([]Entry, len(t.entries)-i)
	copy(out, t.entries[i:])
	return out
}

// Len returns the number of recorded entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Asks returns the content of every ask made so far.
func (t *Transcript) Asks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.asks...)
}
