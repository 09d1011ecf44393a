package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of the message sender as seen by a model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	// TerminatePhrase marks natural completion of a group conversation.
	TerminatePhrase = "TERMINATE"
	// ExitPhrase forces a group conversation closed.
	ExitPhrase = "exit"
)

// Source records what produced a message's content.
type Source string

const (
	SourceHuman Source = "human"
	SourceModel Source = "model"
	SourceCode  Source = "code"

	metaSource = "source"
)

// Message is a single hop in a conversation.
type Message struct {
	ID        string         `json:"id" bson:"id"`
	Role      Role           `json:"role" bson:"role"`
	Name      string         `json:"name,omitempty" bson:"name,omitempty"`           // sender
	Recipient string         `json:"recipient,omitempty" bson:"recipient,omitempty"` // receiver
	Content   string         `json:"content" bson:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// From creates a message authored by the named sender.
func From(name string, role Role, content string) *Message {
	msg := NewMessage(role, content)
	msg.Name = name
	return msg
}

// IsTermination reports whether the message signals natural completion.
func (m *Message) IsTermination() bool {
	if m == nil {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(m.Content), TerminatePhrase)
}

// IsExit reports whether the message forces the conversation closed.
func (m *Message) IsExit() bool {
	if m == nil {
		return false
	}
	return strings.TrimSpace(m.Content) == ExitPhrase
}

// WithSource tags the message with what produced it and returns it.
func (m *Message) WithSource(src Source) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[metaSource] = string(src)
	return m
}

// Source returns the producer tag, or "" when untagged.
func (m *Message) Source() Source {
	if m == nil || m.Metadata == nil {
		return ""
	}
	src, _ := m.Metadata[metaSource].(string)
	return Source(src)
}

// IsHuman reports whether a person typed the message.
func (m *Message) IsHuman() bool {
	return m.Source() == SourceHuman
}

// Clone creates a deep copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	if msg.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}

// Last returns up to n trailing messages. n <= 0 returns all of them.
func Last(msgs []*Message, n int) []*Message {
	if n <= 0 || n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
