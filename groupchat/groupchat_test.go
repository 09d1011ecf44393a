package groupchat

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/ai-groupchat/agent"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

// scripted replies with queued contents; an empty string is a pass.
type scripted struct {
	name    string
	replies []string
	err     error
	calls   int
	senders []string
}

func (s *scripted) Name() string        { return s.name }
func (s *scripted) Description() string { return s.name + " role" }

func (s *scripted) Send(ctx context.Context, msg *message.Message, to agent.Recipient) error {
	msg.Name = s.name
	return to.Receive(ctx, msg)
}

func (s *scripted) Reply(ctx context.Context, history []*message.Message, sender string) (*message.Message, error) {
	s.calls++
	s.senders = append(s.senders, sender)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r == "" {
		return nil, nil
	}
	return message.From(s.name, message.RoleAssistant, r), nil
}

func human(name, text string) *message.Message {
	return message.From(name, message.RoleUser, text).WithSource(message.SourceHuman)
}

func newChat(t *testing.T, maxRound int, ps ...Participant) (*GroupChat, *Manager) {
	t.Helper()
	chat, err := New(ps, maxRound)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return chat, NewManager(chat, WithLogger(logging.Discard()))
}

func TestNewValidates(t *testing.T) {
	a := &scripted{name: "a"}
	if _, err := New(nil, 10); err == nil {
		t.Error("empty participants should fail")
	}
	if _, err := New([]Participant{a}, 0); err == nil {
		t.Error("zero budget should fail")
	}
	if _, err := New([]Participant{a, &scripted{name: "a"}}, 10); err == nil {
		t.Error("duplicate names should fail")
	}
}

func TestReceiveTerminationDetection(t *testing.T) {
	user := &scripted{name: "Query_Agent"}
	chat, mgr := newChat(t, 10, user)
	ctx := context.Background()

	if err := mgr.Receive(ctx, human("Query_Agent", "task")); err != nil {
		t.Fatal(err)
	}
	if chat.Closed() != Open {
		t.Fatal("chat should be open")
	}

	if err := mgr.Receive(ctx, message.From("Analysis_Agent", message.RoleAssistant, "done.\nTERMINATE\n")); err != nil {
		t.Fatal(err)
	}
	if chat.Closed() != ClosedByTerm {
		t.Fatalf("Closed() = %q, want terminate", chat.Closed())
	}

	err := mgr.Receive(ctx, message.From("Code_Planner", message.RoleAssistant, "late"))
	if !errors.Is(err, errorskg.ErrConversationClosed) {
		t.Fatalf("agent message after close should fail, got %v", err)
	}

	if err := mgr.Receive(ctx, human("Query_Agent", "one more thing")); err != nil {
		t.Fatal(err)
	}
	if chat.Closed() != Open {
		t.Error("human message should reopen the chat")
	}

	if err := mgr.Receive(ctx, human("Query_Agent", "exit")); err != nil {
		t.Fatal(err)
	}
	if chat.Closed() != ClosedByExit {
		t.Errorf("Closed() = %q, want exit", chat.Closed())
	}
	if chat.Len() != 4 {
		t.Errorf("Len() = %d, want 4", chat.Len())
	}
	if mgr.LastSpeaker() != "Query_Agent" {
		t.Errorf("LastSpeaker() = %q", mgr.LastSpeaker())
	}
}

func TestHumanMessageDoesNotReopenSpentBudget(t *testing.T) {
	chat, mgr := newChat(t, 2, &scripted{name: "a"})
	ctx := context.Background()
	_ = mgr.Receive(ctx, message.From("a", message.RoleAssistant, "TERMINATE"))
	_ = mgr.Receive(ctx, human("a", "again"))
	if chat.Closed() != ClosedByTerm {
		t.Error("chat at budget must stay closed")
	}
}

func TestMessagesAreSnapshots(t *testing.T) {
	chat, mgr := newChat(t, 10, &scripted{name: "a"})
	msg := human("a", "original")
	_ = mgr.Receive(context.Background(), msg)
	msg.Content = "mutated"

	msgs := chat.Messages()
	if msgs[0].Content != "original" {
		t.Error("chat must store a copy of received messages")
	}
	msgs[0] = nil
	if chat.Last() == nil {
		t.Error("Messages() must return a copy of the log")
	}
}

func TestRunStopsOnTermination(t *testing.T) {
	user := &scripted{name: "Query_Agent"}
	planner := &scripted{name: "Code_Planner", replies: []string{"```python\nprint(1)\n```"}}
	runner := &scripted{name: "Code_Runner", replies: []string{"exitcode: 0 (execution succeeded)\nCode output: 1"}}
	analyst := &scripted{name: "Analysis_Agent", replies: []string{"The output is 1.\nTERMINATE"}}
	chat, mgr := newChat(t, 50, user, planner, runner, analyst)

	_ = mgr.Receive(context.Background(), human("Query_Agent", "print one"))
	outcome, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome != OutcomeTerminated {
		t.Errorf("outcome = %s", outcome)
	}
	if chat.Len() != 4 {
		t.Errorf("Len() = %d, want 4", chat.Len())
	}
	if user.calls != 0 {
		t.Error("round robin should start after the opening speaker")
	}
	if planner.senders[0] != ManagerName {
		t.Errorf("replies should be requested by %s, got %q", ManagerName, planner.senders[0])
	}
}

func TestRunStopsOnBudget(t *testing.T) {
	a := &scripted{name: "a", replies: []string{"1", "2", "3", "4", "5"}}
	b := &scripted{name: "b", replies: []string{"1", "2", "3", "4", "5"}}
	chat, mgr := newChat(t, 3, a, b)

	_ = mgr.Receive(context.Background(), human("a", "go"))
	outcome, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeBudgetExhausted || chat.Len() != 3 {
		t.Errorf("outcome = %s, len = %d", outcome, chat.Len())
	}
}

func TestRunStopsWhenEveryonePasses(t *testing.T) {
	a := &scripted{name: "a"}
	b := &scripted{name: "b", replies: []string{"once"}}
	chat, mgr := newChat(t, 50, a, b)

	_ = mgr.Receive(context.Background(), human("a", "go"))
	outcome, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeIdle {
		t.Errorf("outcome = %s", outcome)
	}
	if chat.Len() != 2 {
		t.Errorf("Len() = %d, want 2", chat.Len())
	}
}

func TestRunStopsOnExitReply(t *testing.T) {
	a := &scripted{name: "a", replies: []string{"exit"}}
	b := &scripted{name: "b", replies: []string{"never"}}
	_, mgr := newChat(t, 50, a, b)

	_ = mgr.Receive(context.Background(), human("b", "go"))
	outcome, err := mgr.Run(context.Background())
	if err != nil || outcome != OutcomeExited {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if b.calls != 0 {
		t.Error("no turns after exit")
	}
}

func TestRunAlreadyClosed(t *testing.T) {
	a := &scripted{name: "a", replies: []string{"x"}}
	_, mgr := newChat(t, 50, a)
	_ = mgr.Receive(context.Background(), human("a", "exit"))

	outcome, err := mgr.Run(context.Background())
	if err != nil || outcome != OutcomeExited || a.calls != 0 {
		t.Errorf("outcome = %s, err = %v, calls = %d", outcome, err, a.calls)
	}
}

func TestRunPropagatesReplyError(t *testing.T) {
	base := errors.New("model down")
	a := &scripted{name: "a", err: base}
	_, mgr := newChat(t, 50, a)
	_ = mgr.Receive(context.Background(), message.From("x", message.RoleUser, "go"))

	if _, err := mgr.Run(context.Background()); !errors.Is(err, base) {
		t.Fatalf("expected reply error, got %v", err)
	}
}

func TestRunHonoursContext(t *testing.T) {
	a := &scripted{name: "a", replies: []string{"x"}}
	_, mgr := newChat(t, 50, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mgr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
