package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/groupchat"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// State represents the state of a session
type State string

const (
	StateActive State = "active"
	StateClosed State = "closed"
)

// Handles are the named agents of one session.
type Handles struct {
	UserProxy *agent.Agent
	Planner   *agent.Agent
	Runner    *agent.Agent
	Analyzer  *agent.Agent
}

// All returns the handles in turn order.
func (h *Handles) All() []*agent.Agent {
	return []*agent.Agent{h.UserProxy, h.Planner, h.Runner, h.Analyzer}
}

// Participants returns the handles as group chat participants.
func (h *Handles) Participants() []groupchat.Participant {
	all := h.All()
	ps := make([]groupchat.Participant, len(all))
	for i, a := range all {
		ps[i] = a
	}
	return ps
}

// Base provides common fields for session implementations
type Base struct {
	id        string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any
}

// NewBase initializes a new base session
func NewBase(id string) Base {
	now := time.Now()
	return Base{
		id:        id,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]any),
	}
}

// ID returns the session ID
func (b *Base) ID() string {
	return b.id
}

// Session is one chat UI connection: its agents, its channel and at most one
// group conversation. A session admits one turn at a time.
type Session struct {
	mu sync.RWMutex
	Base

	channel ui.Channel
	ctx     context.Context
	cancel  context.CancelFunc
	turn    chan struct{}

	handles      *Handles
	bootstrapErr error
	retried      bool
	chat         *groupchat.Manager
	outcome      groupchat.Outcome
}

// New creates a session bound to channel. The session context keeps the
// values of parent but is only cancelled by Close.
func New(parent context.Context, id string, channel ui.Channel) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Session{
		Base:    NewBase(id),
		channel: channel,
		ctx:     ctx,
		cancel:  cancel,
		turn:    make(chan struct{}, 1),
	}
}

// Channel returns the UI channel of the session.
func (s *Session) Channel() ui.Channel {
	return s.channel
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Handles returns the agent handles, or nil before a successful bootstrap.
func (s *Session) Handles() *Handles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handles
}

// SetHandles stores the bootstrapped agents and clears any earlier failure.
func (s *Session) SetHandles(h *Handles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = h
	s.bootstrapErr = nil
	s.touch()
}

// BootstrapFailed records why the handles could not be built.
func (s *Session) BootstrapFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapErr = err
	s.touch()
}

// BootstrapErr returns the last bootstrap failure.
func (s *Session) BootstrapErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapErr
}

// TakeRetry reports whether a lazy bootstrap retry is still allowed and uses
// it up. Only the first call returns true.
func (s *Session) TakeRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retried {
		return false
	}
	s.retried = true
	return true
}

// Chat returns the group conversation manager, or nil before the first task.
func (s *Session) Chat() *groupchat.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat
}

// SetChat attaches the group conversation.
func (s *Session) SetChat(m *groupchat.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = m
	s.touch()
}

// MessageCount returns the number of messages in the group conversation.
func (s *Session) MessageCount() int {
	if c := s.Chat(); c != nil {
		return c.Chat().Len()
	}
	return 0
}

// SetOutcome records how the latest run ended.
func (s *Session) SetOutcome(o groupchat.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
	s.touch()
}

// Outcome returns how the latest run ended.
func (s *Session) Outcome() groupchat.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// GetState returns the current session state
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetMetadata sets metadata for the session
func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
	s.touch()
}

// Acquire takes the session's turn slot, waiting until it is free.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("session %s: %w", s.ID(), s.ctx.Err())
	}
}

// Release frees the turn slot.
func (s *Session) Release() {
	select {
	case <-s.turn:
	default:
	}
}

// WaitIdle blocks until no turn is in flight.
func (s *Session) WaitIdle(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		<-s.turn
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return nil
	}
}

// Close cancels in-flight work. Closing twice is an error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == StateClosed {
		return fmt.Errorf("session %s already closed", s.ID())
	}
	s.State = StateClosed
	s.touch()
	s.cancel()
	return nil
}

// Snapshot returns a serializable record of the session.
func (s *Session) Snapshot() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := &Record{
		ID:        s.ID(),
		State:     s.State,
		Outcome:   string(s.outcome),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Metadata:  cloneMetadata(s.Metadata),
	}
	if s.chat != nil {
		gc := s.chat.Chat()
		r.Participants = gc.Names()
		r.MaxRound = gc.MaxRound()
		r.Messages = gc.Messages()
	}
	return r.Clone()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}
