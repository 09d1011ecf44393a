// Package ui defines the contract between the chat orchestration core and a
// concrete chat front end: transcript entries flow out, asks block for answers.
package ui

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transcript entry.
type Kind string

const (
	KindMessage Kind = "message"
	KindNotice  Kind = "notice"
	KindError   Kind = "error"
)

// Entry is one line of the chat transcript shown to the user.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry builds a message entry authored by author.
func NewEntry(author, content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   content,
		Kind:      KindMessage,
		CreatedAt: time.Now(),
	}
}

// Notice builds an unauthored informational entry.
func Notice(content string) Entry {
	e := NewEntry("", content)
	e.Kind = KindNotice
	return e
}

// Error builds an error entry from err.
func Error(err error) Entry {
	e := NewEntry("", err.Error())
	e.Kind = KindError
	return e
}

// Action is one button of an action ask.
type Action struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// ActionRequest asks the user to pick one of Actions.
type ActionRequest struct {
	Content string        `json:"content"`
	Actions []Action      `json:"actions"`
	Timeout time.Duration `json:"-"`
}

// TextRequest asks the user for free text.
type TextRequest struct {
	Content string        `json:"content"`
	Timeout time.Duration `json:"-"`
}

// Response is the user's answer: the chosen action value or the typed text.
type Response struct {
	Value string `json:"value"`
}

// Publisher appends entries to a session transcript.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// Asker blocks until the user answers. A nil response with a nil error means
// the ask produced no result (timeout or dismissal) and may be retried.
type Asker interface {
	AskAction(ctx context.Context, req ActionRequest) (*Response, error)
	AskText(ctx context.Context, req TextRequest) (*Response, error)
}

// Channel is the per-session connection to the front end.
type Channel interface {
	Publisher
	Asker
}
