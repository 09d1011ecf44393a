package orchestrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/config"
	"github.com/sweetpotato0/ai-groupchat/contrib/session/inmemory"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/groupchat"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/relay"
	"github.com/sweetpotato0/ai-groupchat/runner"
	"github.com/sweetpotato0/ai-groupchat/session"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// scriptedLLM answers model calls from a queue. With a gate set, every call
// reports on entered and then blocks until the gate closes, ignoring ctx.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	closed  bool

	gate      chan struct{}
	entered   chan struct{}
	enterOnce sync.Once
}

func (s *scriptedLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if s.gate != nil {
		s.enterOnce.Do(func() { close(s.entered) })
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, r)}, nil
}

func (s *scriptedLLM) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// stubExecutor reports output for any history that contains a code fence.
type stubExecutor struct{ output string }

func (e stubExecutor) ExecuteLatest(ctx context.Context, history []*message.Message) (string, bool, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if strings.Contains(history[i].Content, "```") {
			return e.output, true, nil
		}
	}
	return "", false, nil
}

type heldRun struct {
	task     runner.Task
	cleanups []func()
}

// heldDispatcher records dispatched runs without executing them.
type heldDispatcher struct {
	mu    sync.Mutex
	tasks []heldRun
}

func (d *heldDispatcher) Go(ctx context.Context, id string, task runner.Task, cleanups ...func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, heldRun{task: task, cleanups: cleanups})
}

// drain completes held runs with a cancelled context, which releases the
// turn slot without any agent speaking.
func (d *heldDispatcher) drain() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, run := range tasks {
		_ = run.task(ctx)
		for _, fn := range run.cleanups {
			fn()
		}
	}
}

// droppingDispatcher abandons every run the way a runner does when the
// session ends before a slot frees up.
type droppingDispatcher struct{}

func (droppingDispatcher) Go(ctx context.Context, id string, task runner.Task, cleanups ...func()) {
	for _, fn := range cleanups {
		fn()
	}
}

func (d *heldDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

type fixture struct {
	orch     *Orchestrator
	sessions *session.Manager
	store    *inmemory.InMemoryStore
	llm      *scriptedLLM
	held     *heldDispatcher
}

func testConfig(t *testing.T, budget int) *config.Config {
	t.Helper()
	t.Setenv(config.ConfigListEnv, "")
	cfg := config.Default()
	cfg.Model.APIKey = "test-key"
	cfg.RoundBudget = budget
	cfg.SpeakerSelection = config.SpeakerRoundRobin
	cfg.MaxContextTokens = 0
	cfg.DataSource.Preview = false
	cfg.HumanInput.Timeout = 50 * time.Millisecond
	cfg.HumanInput.MaxAttempts = 1
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config, d Dispatcher) *fixture {
	t.Helper()
	f := &fixture{
		store: inmemory.NewInMemoryStore(),
		llm:   &scriptedLLM{},
	}
	if d == nil {
		f.held = &heldDispatcher{}
		d = f.held
	}
	f.sessions = session.NewManager(session.WithStore(f.store), session.WithLogger(logging.Discard()))
	orch, err := New(cfg, f.sessions,
		WithDispatcher(d),
		WithLogger(logging.Discard()),
		WithProviderFactory(func(context.Context, config.ModelConfig) (agent.LLMClient, error) {
			return f.llm, nil
		}),
		WithExecutorFactory(func(config.ExecutionConfig) (agent.CodeExecutor, error) {
			return stubExecutor{output: "exitcode: 0 (execution succeeded)\nCode output: 2024-05-01"}, nil
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.orch = orch
	return f
}

func (f *fixture) start(t *testing.T, id string) *ui.Transcript {
	t.Helper()
	tr := ui.NewTranscript()
	if err := f.orch.OnSessionStart(context.Background(), id, tr); err != nil {
		t.Fatalf("OnSessionStart(%s) error = %v", id, err)
	}
	return tr
}

func (f *fixture) chat(t *testing.T, id string) *groupchat.GroupChat {
	t.Helper()
	sess, err := f.sessions.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	if sess.Chat() == nil {
		t.Fatalf("session %s has no conversation", id)
	}
	return sess.Chat().Chat()
}

func hasEntry(entries []ui.Entry, kind ui.Kind, author, content string) bool {
	for _, e := range entries {
		if e.Kind == kind && e.Author == author && e.Content == content {
			return true
		}
	}
	return false
}

func TestOnSessionStartPublishesWelcome(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	tr := f.start(t, "s1")

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Author != QueryAgentName || !strings.Contains(entries[0].Content, "Datascience Agent Team") {
		t.Errorf("unexpected welcome %+v", entries[0])
	}

	sess, _ := f.sessions.Get("s1")
	h := sess.Handles()
	if h == nil {
		t.Fatal("handles not set")
	}
	names := []string{h.UserProxy.Name(), h.Planner.Name(), h.Runner.Name(), h.Analyzer.Name()}
	want := []string{QueryAgentName, CodePlannerName, CodeRunnerName, AnalysisAgentName}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("handle %d = %s, want %s", i, names[i], want[i])
		}
	}
	if h.UserProxy.Spec().HumanInputMode != agent.HumanInputAlways {
		t.Errorf("Query_Agent human input mode = %s", h.UserProxy.Spec().HumanInputMode)
	}
	if !h.Runner.Spec().Capabilities.ExecuteCode || h.Runner.Spec().HumanInputMode != agent.HumanInputNever {
		t.Errorf("Code_Runner spec = %+v", h.Runner.Spec())
	}
	if !strings.Contains(h.Planner.Spec().SystemPrompt, "simple.xml") {
		t.Error("planner prompt lacks the data source context")
	}

	wantChain := []string{"ErrorHandler", "SendLogger", "EnvelopeValidator", "MessageRelay"}
	for _, a := range []*agent.Agent{h.UserProxy, h.Planner, h.Runner, h.Analyzer} {
		if got := a.Middlewares().Names(); !slices.Equal(got, wantChain) {
			t.Errorf("%s send chain = %v, want %v", a.Name(), got, wantChain)
		}
	}
}

func TestOnSessionStartRejectsDuplicate(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	f.start(t, "dup")
	err := f.orch.OnSessionStart(context.Background(), "dup", ui.NewTranscript())
	if !errors.Is(err, errorskg.ErrSessionExists) {
		t.Errorf("OnSessionStart() error = %v, want ErrSessionExists", err)
	}
}

func TestStartCreatesConversation(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	tr := f.start(t, "s1")

	if err := f.orch.HandleIncomingMessage(context.Background(), "s1", "Find today's date"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}

	chat := f.chat(t, "s1")
	if chat.Len() != 1 || chat.MaxRound() != 50 {
		t.Fatalf("messages = %d, max round = %d", chat.Len(), chat.MaxRound())
	}
	first := chat.Messages()[0]
	if first.Content != "Find today's date" || first.Name != QueryAgentName || first.Recipient != groupchat.ManagerName {
		t.Errorf("opening message = %+v", first)
	}
	if f.held.len() != 1 {
		t.Errorf("dispatched %d runs, want 1", f.held.len())
	}

	entries := tr.Entries()
	if !hasEntry(entries, ui.KindNotice, "", "Starting agents on task: Find today's date...") {
		t.Error("start notice missing")
	}
	if !hasEntry(entries, ui.KindMessage, QueryAgentName, relay.Format(groupchat.ManagerName, "Find today's date")) {
		t.Error("relayed opening message missing")
	}
}

func TestContinueInjectsTextVerbatim(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	f.start(t, "s1")
	ctx := context.Background()

	if err := f.orch.HandleIncomingMessage(ctx, "s1", "first"); err != nil {
		t.Fatal(err)
	}
	f.held.drain()

	text := "  use the second sheet, please\n"
	if err := f.orch.HandleIncomingMessage(ctx, "s1", text); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	chat := f.chat(t, "s1")
	if chat.Len() != 2 {
		t.Fatalf("messages = %d, want 2", chat.Len())
	}
	if got := chat.Last().Content; got != text {
		t.Errorf("injected %q, want %q", got, text)
	}
	if f.held.len() != 1 {
		t.Errorf("continue should dispatch a resumed run, held = %d", f.held.len())
	}
}

func TestBudgetSpentInjectsExit(t *testing.T) {
	const budget = 10
	f := newFixture(t, testConfig(t, budget), nil)
	f.start(t, "s2")
	ctx := context.Background()

	for i := 0; i < budget; i++ {
		if err := f.orch.HandleIncomingMessage(ctx, "s2", "step"); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		f.held.drain()
	}
	chat := f.chat(t, "s2")
	if chat.Len() != budget {
		t.Fatalf("messages = %d, want %d", chat.Len(), budget)
	}

	if err := f.orch.HandleIncomingMessage(ctx, "s2", "please continue"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	if got := chat.Last().Content; got != message.ExitPhrase {
		t.Errorf("injected %q, want exit", got)
	}
	if chat.Closed() != groupchat.ClosedByExit {
		t.Errorf("chat closed = %q, want exit", chat.Closed())
	}
	if f.held.len() != 0 {
		t.Errorf("no run should be dispatched once the budget is spent, held = %d", f.held.len())
	}
}

func TestFreshSessionsAreIndependent(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	f.start(t, "a")
	f.start(t, "b")
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := f.orch.HandleIncomingMessage(ctx, id, "same task"); err != nil {
			t.Fatal(err)
		}
	}
	f.held.drain()

	a, b := f.chat(t, "a"), f.chat(t, "b")
	if a == b {
		t.Fatal("sessions share a conversation")
	}
	if a.Messages()[0].Content != b.Messages()[0].Content {
		t.Error("opening messages differ")
	}

	if err := f.orch.HandleIncomingMessage(ctx, "a", "only a"); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 2 || b.Len() != 1 {
		t.Errorf("a = %d, b = %d messages", a.Len(), b.Len())
	}
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	err := f.orch.HandleIncomingMessage(context.Background(), "missing", "hi")
	if !errors.Is(err, errorskg.ErrSessionNotInitialized) {
		t.Errorf("error = %v, want ErrSessionNotInitialized", err)
	}
}

func TestBootstrapRetriedOnce(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{"recovers on first message", 1, false},
		{"gives up after one retry", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 50)
			calls := 0
			llm := &scriptedLLM{}
			orch, err := New(cfg, session.NewManager(session.WithLogger(logging.Discard())),
				WithDispatcher(&heldDispatcher{}),
				WithLogger(logging.Discard()),
				WithProviderFactory(func(context.Context, config.ModelConfig) (agent.LLMClient, error) {
					calls++
					if calls <= tt.failures {
						return nil, errors.New("provider unavailable")
					}
					return llm, nil
				}),
				WithExecutorFactory(func(config.ExecutionConfig) (agent.CodeExecutor, error) {
					return stubExecutor{}, nil
				}),
			)
			if err != nil {
				t.Fatal(err)
			}

			tr := ui.NewTranscript()
			ctx := context.Background()
			if err := orch.OnSessionStart(ctx, "s", tr); err == nil {
				t.Fatal("OnSessionStart() should fail")
			}
			if entries := tr.Entries(); len(entries) != 1 || entries[0].Kind != ui.KindError {
				t.Fatalf("bootstrap failure not published: %+v", entries)
			}

			err = orch.HandleIncomingMessage(ctx, "s", "task")
			if tt.wantErr {
				if !errors.Is(err, errorskg.ErrSessionNotInitialized) {
					t.Fatalf("error = %v, want ErrSessionNotInitialized", err)
				}
				err = orch.HandleIncomingMessage(ctx, "s", "again")
				if !errors.Is(err, errorskg.ErrSessionNotInitialized) {
					t.Errorf("second error = %v", err)
				}
				if calls != 2 {
					t.Errorf("provider built %d times, want 2", calls)
				}
				last := tr.Entries()[tr.Len()-1]
				if last.Kind != ui.KindError {
					t.Errorf("last entry = %+v, want error", last)
				}
				return
			}
			if err != nil {
				t.Fatalf("HandleIncomingMessage() error = %v", err)
			}
			sess, _ := orch.Sessions().Get("s")
			if sess.MessageCount() != 1 {
				t.Errorf("messages = %d, want 1", sess.MessageCount())
			}
		})
	}
}

func TestConversationRunsToTermination(t *testing.T) {
	cfg := testConfig(t, 50)
	f := newFixture(t, cfg, runner.New(2, runner.WithLogger(logging.Discard())))
	f.llm.replies = []string{
		"```python\nimport datetime\nprint(datetime.date.today())\n```",
		"Today is 2024-05-01. TERMINATE",
	}
	tr := f.start(t, "s1")
	ctx := context.Background()

	if err := f.orch.HandleIncomingMessage(ctx, "s1", "Find today's date"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.orch.WaitIdle(waitCtx, "s1"); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	sess, _ := f.sessions.Get("s1")
	if sess.Outcome() != groupchat.OutcomeTerminated {
		t.Fatalf("outcome = %q, want terminated", sess.Outcome())
	}
	chat := f.chat(t, "s1")
	authors := make([]string, 0, chat.Len())
	for _, m := range chat.Messages() {
		authors = append(authors, m.Name)
	}
	want := []string{QueryAgentName, CodePlannerName, CodeRunnerName, AnalysisAgentName}
	if strings.Join(authors, ",") != strings.Join(want, ",") {
		t.Errorf("authors = %v, want %v", authors, want)
	}

	relayed := 0
	for _, e := range tr.Entries() {
		if e.Kind == ui.KindMessage && strings.HasPrefix(e.Content, `Sending message to "chat_manager": `) {
			relayed++
		}
	}
	if relayed != len(want) {
		t.Errorf("relayed %d entries, want %d", relayed, len(want))
	}

	record, err := f.store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("transcript not archived: %v", err)
	}
	if len(record.Messages) != len(want) || record.Outcome != string(groupchat.OutcomeTerminated) {
		t.Errorf("archived record = %+v", record)
	}
}

func TestRunErrorIsPublished(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), runner.New(1, runner.Inline(), runner.WithLogger(logging.Discard())))
	f.llm.err = errors.New("model unavailable")
	tr := f.start(t, "s1")

	if err := f.orch.HandleIncomingMessage(context.Background(), "s1", "task"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	last := tr.Entries()[tr.Len()-1]
	if last.Kind != ui.KindError || !strings.Contains(last.Content, "model unavailable") {
		t.Errorf("last entry = %+v, want the run error", last)
	}

	sess, _ := f.sessions.Get("s1")
	if err := sess.WaitIdle(context.Background()); err != nil {
		t.Errorf("turn slot not released: %v", err)
	}
}

func TestOnSessionEndArchivesAndReleases(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), nil)
	f.start(t, "s1")
	ctx := context.Background()
	if err := f.orch.HandleIncomingMessage(ctx, "s1", "task"); err != nil {
		t.Fatal(err)
	}

	if err := f.orch.OnSessionEnd(ctx, "s1"); err != nil {
		t.Fatalf("OnSessionEnd() error = %v", err)
	}
	if _, err := f.sessions.Get("s1"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("session still registered: %v", err)
	}
	if !f.llm.closed {
		t.Error("model client not closed")
	}
	record, err := f.store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if record.State != session.StateClosed || len(record.Messages) != 1 {
		t.Errorf("archived record = %+v", record)
	}

	f.held.drain()
	if err := f.orch.OnSessionEnd(ctx, "s1"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("second OnSessionEnd() error = %v", err)
	}
}

func TestAbandonedRunReleasesTurn(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), droppingDispatcher{})
	f.start(t, "s1")
	ctx := context.Background()

	if err := f.orch.HandleIncomingMessage(ctx, "s1", "task"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.orch.WaitIdle(waitCtx, "s1"); err != nil {
		t.Fatalf("turn slot still held after the run was abandoned: %v", err)
	}
	if err := f.orch.HandleIncomingMessage(waitCtx, "s1", "again"); err != nil {
		t.Errorf("next message blocked: %v", err)
	}
}

func TestCloseWaitsForInFlightRuns(t *testing.T) {
	r := runner.New(2, runner.WithLogger(logging.Discard()))
	f := newFixture(t, testConfig(t, 50), r)
	f.llm.replies = []string{"Nothing to run. TERMINATE"}
	f.llm.gate = make(chan struct{})
	f.llm.entered = make(chan struct{})
	f.start(t, "s1")
	ctx := context.Background()

	if err := f.orch.HandleIncomingMessage(ctx, "s1", "task"); err != nil {
		t.Fatalf("HandleIncomingMessage() error = %v", err)
	}
	select {
	case <-f.llm.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the model")
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	closed := make(chan error, 1)
	go func() { closed <- f.orch.Close(closeCtx) }()

	select {
	case err := <-closed:
		t.Fatalf("Close() returned with a run in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(f.llm.gate)

	if err := <-closed; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Active() != 0 {
		t.Errorf("Active() = %d after Close", r.Active())
	}
	if _, err := f.store.Load(ctx, "s1"); err != nil {
		t.Errorf("transcript not archived: %v", err)
	}
}

func TestCloseHonoursDeadline(t *testing.T) {
	f := newFixture(t, testConfig(t, 50), runner.New(1, runner.WithLogger(logging.Discard())))
	f.llm.gate = make(chan struct{})
	f.llm.entered = make(chan struct{})
	t.Cleanup(func() { close(f.llm.gate) })
	f.start(t, "s1")

	if err := f.orch.HandleIncomingMessage(context.Background(), "s1", "task"); err != nil {
		t.Fatal(err)
	}
	<-f.llm.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.orch.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
}

func TestNewValidates(t *testing.T) {
	cfg := config.Default()
	cfg.RoundBudget = 0
	if _, err := New(cfg, session.NewManager()); !errors.Is(err, errorskg.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(config.Default(), nil); err == nil {
		t.Error("New() without sessions should fail")
	}
}
