package groupchat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// ManagerName is the recipient name of the chat manager.
const ManagerName = "chat_manager"

var errConversationClosed = errorskg.ErrConversationClosed

// Outcome is how an autonomous run ended.
type Outcome string

const (
	OutcomeTerminated      Outcome = "terminated"
	OutcomeExited          Outcome = "exited"
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	OutcomeIdle            Outcome = "idle"
)

// Manager receives every message of the chat and drives the turn loop.
type Manager struct {
	chat     *GroupChat
	selector SpeakerSelector
	logger   *slog.Logger
	tracer   trace.Tracer

	mu          sync.Mutex
	lastSpeaker string
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithSelector sets the speaker selection strategy
func WithSelector(s SpeakerSelector) ManagerOption {
	return func(m *Manager) {
		if s != nil {
			m.selector = s
		}
	}
}

// WithLogger sets the manager logger
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates the manager of chat. Speakers rotate round robin unless
// another selector is configured.
func NewManager(chat *GroupChat, opts ...ManagerOption) *Manager {
	m := &Manager{
		chat:     chat,
		selector: RoundRobin{},
		tracer:   telemetry.Tracer("groupchat"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("groupchat")
	}
	return m
}

// Name returns the manager's recipient name.
func (m *Manager) Name() string {
	return ManagerName
}

// Chat returns the managed conversation.
func (m *Manager) Chat() *GroupChat {
	return m.chat
}

// Receive appends msg to the chat and applies termination detection.
func (m *Manager) Receive(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("groupchat: nil message")
	}
	if err := m.chat.append(msg); err != nil {
		return err
	}
	m.setLastSpeaker(msg.Name)

	if reason := m.chat.Closed(); reason != Open {
		m.logger.DebugContext(ctx, "chat closed", "reason", string(reason), "sender", msg.Name, "messages", m.chat.Len())
	}
	return nil
}

// Run lets the agents talk until the chat closes, the round budget is spent,
// every participant passes in turn, or ctx is done.
func (m *Manager) Run(ctx context.Context) (outcome Outcome, err error) {
	ctx, span := m.tracer.Start(ctx, "groupchat.run")
	defer func() {
		span.SetAttributes(
			telemetry.AttrOutcome.String(string(outcome)),
			telemetry.AttrMessages.Int(m.chat.Len()),
		)
		telemetry.End(span, err)
	}()

	passes := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch m.chat.Closed() {
		case ClosedByExit:
			return OutcomeExited, nil
		case ClosedByTerm:
			return OutcomeTerminated, nil
		}
		if m.chat.BudgetSpent() {
			return OutcomeBudgetExhausted, nil
		}
		if passes >= len(m.chat.participants) {
			return OutcomeIdle, nil
		}

		speaker, err := m.selector.Select(ctx, m.chat, m.LastSpeaker())
		if err != nil {
			return "", fmt.Errorf("groupchat: select speaker: %w", err)
		}
		span.AddEvent("speaker", trace.WithAttributes(telemetry.AttrSpeaker.String(speaker.Name())))

		reply, err := speaker.Reply(ctx, m.chat.Messages(), m.Name())
		if err != nil {
			return "", fmt.Errorf("groupchat: %s reply: %w", speaker.Name(), err)
		}
		if reply == nil {
			passes++
			m.setLastSpeaker(speaker.Name())
			m.logger.DebugContext(ctx, "speaker passed", "speaker", speaker.Name(), "passes", passes)
			continue
		}
		passes = 0

		if err := speaker.Send(ctx, reply, m); err != nil {
			return "", fmt.Errorf("groupchat: %s send: %w", speaker.Name(), err)
		}
	}
}

// LastSpeaker is the name of the participant that spoke or passed last.
func (m *Manager) LastSpeaker() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpeaker
}

func (m *Manager) setLastSpeaker(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSpeaker = name
}
