// Package groupchat runs a multi-agent conversation: an append-only message
// log shared by a fixed set of participants, and a manager that picks who
// speaks next until the chat terminates or its round budget is spent.
package groupchat

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/message"
)

// Participant is an agent taking turns in the chat.
type Participant interface {
	Name() string
	Description() string
	Send(ctx context.Context, msg *message.Message, to agent.Recipient) error
	Reply(ctx context.Context, history []*message.Message, sender string) (*message.Message, error)
}

// CloseReason records why a chat stopped accepting agent messages.
type CloseReason string

const (
	Open         CloseReason = ""
	ClosedByTerm CloseReason = "terminate"
	ClosedByExit CloseReason = "exit"
)

// GroupChat is the shared conversation state. Message order is the single
// source of truth for progress.
type GroupChat struct {
	mu           sync.RWMutex
	participants []Participant
	messages     []*message.Message
	maxRound     int
	closed       CloseReason
}

// New creates a chat over participants with the given round budget.
func New(participants []Participant, maxRound int) (*GroupChat, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("groupchat: at least one participant is required")
	}
	if maxRound <= 0 {
		return nil, fmt.Errorf("groupchat: max round must be positive, got %d", maxRound)
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == nil || p.Name() == "" {
			return nil, fmt.Errorf("groupchat: participant must have a name")
		}
		if seen[p.Name()] {
			return nil, fmt.Errorf("groupchat: duplicate participant %q", p.Name())
		}
		seen[p.Name()] = true
	}
	return &GroupChat{
		participants: append([]Participant(nil), participants...),
		maxRound:     maxRound,
	}, nil
}

// MaxRound returns the round budget fixed at creation.
func (g *GroupChat) MaxRound() int {
	return g.maxRound
}

// Participants returns the participants in turn order.
func (g *GroupChat) Participants() []Participant {
	return append([]Participant(nil), g.participants...)
}

// Participant looks a participant up by name.
func (g *GroupChat) Participant(name string) (Participant, bool) {
	for _, p := range g.participants {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Names lists participant names in turn order.
func (g *GroupChat) Names() []string {
	names := make([]string, len(g.participants))
	for i, p := range g.participants {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of messages so far.
func (g *GroupChat) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.messages)
}

// Messages returns a snapshot of the message log.
func (g *GroupChat) Messages() []*message.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*message.Message(nil), g.messages...)
}

// Last returns the newest message, or nil.
func (g *GroupChat) Last() *message.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.messages) == 0 {
		return nil
	}
	return g.messages[len(g.messages)-1]
}

// Closed returns why the chat is closed, or Open.
func (g *GroupChat) Closed() CloseReason {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// BudgetSpent reports whether the message count reached the round budget.
func (g *GroupChat) BudgetSpent() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.messages) >= g.maxRound
}

// append stores a copy of msg and updates the closed state:
// exit closes forcibly, a terminal phrase closes naturally, and a human
// message reopens a closed chat that still has budget.
func (g *GroupChat) append(msg *message.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed != Open && !msg.IsHuman() && !msg.IsExit() {
		return fmt.Errorf("groupchat: message from %s after close: %w", msg.Name, errConversationClosed)
	}
	g.messages = append(g.messages, message.Clone(msg))

	switch {
	case msg.IsExit():
		g.closed = ClosedByExit
	case msg.IsTermination():
		g.closed = ClosedByTerm
	case msg.IsHuman() && len(g.messages) < g.maxRound:
		g.closed = Open
	}
	return nil
}
