// Package orchestrator connects chat UI sessions to group conversations.
// It bootstraps each session's agents and decides, per incoming user
// message, whether to start, continue, or end the session's conversation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/config"
	"github.com/sweetpotato0/ai-groupchat/contrib/provider/llm"
	"github.com/sweetpotato0/ai-groupchat/datasource"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/groupchat"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/pkg/metrics"
	"github.com/sweetpotato0/ai-groupchat/pkg/telemetry"
	"github.com/sweetpotato0/ai-groupchat/prompt"
	"github.com/sweetpotato0/ai-groupchat/runner"
	"github.com/sweetpotato0/ai-groupchat/session"
	"github.com/sweetpotato0/ai-groupchat/ui"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher runs a conversation off the caller's goroutine. Cleanups must run
// whether or not the task is ever called.
type Dispatcher interface {
	Go(ctx context.Context, id string, task runner.Task, cleanups ...func())
}

// waiter is implemented by dispatchers that can wait for their runs to end.
type waiter interface {
	Wait(ctx context.Context) error
}

// ProviderFactory builds the model client of a new session.
type ProviderFactory func(ctx context.Context, cfg config.ModelConfig) (agent.LLMClient, error)

// ExecutorFactory builds the code executor of a new session.
type ExecutorFactory func(cfg config.ExecutionConfig) (agent.CodeExecutor, error)

// TokenizerFactory builds the token counter used to trim model context.
type TokenizerFactory func(model string) (agent.TokenCounter, error)

// Branch names of HandleIncomingMessage.
const (
	BranchStart    = "start"
	BranchContinue = "continue"
	BranchExit     = "exit"
)

// runtime holds what a session's agents share but the session does not own.
type runtime struct {
	llm     agent.LLMClient
	closers []io.Closer
}

// Orchestrator is the Conversation Orchestrator and Session Bootstrap.
type Orchestrator struct {
	cfg        *config.Config
	sessions   *session.Manager
	dispatcher Dispatcher
	prompts    *prompt.Manager
	newLLM     ProviderFactory
	newExec    ExecutorFactory
	newTokens  TokenizerFactory
	fetcher    *datasource.Fetcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	runtimes map[string]*runtime
	previews map[string]string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDispatcher sets where conversation runs execute
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// WithProviderFactory overrides how model clients are built
func WithProviderFactory(f ProviderFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newLLM = f
		}
	}
}

// WithExecutorFactory overrides how code executors are built
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newExec = f
		}
	}
}

// WithTokenizerFactory overrides how token counters are built
func WithTokenizerFactory(f TokenizerFactory) Option {
	return func(o *Orchestrator) {
		o.newTokens = f
	}
}

// WithPrompts replaces the built-in prompt templates
func WithPrompts(p *prompt.Manager) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.prompts = p
		}
	}
}

// WithFetcher sets the data-source fetcher used for planner previews
func WithFetcher(f *datasource.Fetcher) Option {
	return func(o *Orchestrator) {
		o.fetcher = f
	}
}

// WithMetrics records orchestration metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the orchestrator logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator over sessions.
func New(cfg *config.Config, sessions *session.Manager, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", errorskg.ErrInvalidConfig)
	}
	if sessions == nil {
		return nil, fmt.Errorf("orchestrator: session manager cannot be nil")
	}
	if cfg.RoundBudget <= 0 {
		return nil, fmt.Errorf("%w: round budget must be positive, got %d", errorskg.ErrInvalidConfig, cfg.RoundBudget)
	}

	o := &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		prompts:   prompt.Defaults(),
		newLLM:    defaultProvider,
		newExec:   defaultExecutor,
		newTokens: DefaultTokenizer,
		tracer:    telemetry.Tracer("orchestrator"),
		runtimes:  make(map[string]*runtime),
		previews:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.WithComponent("orchestrator")
	}
	if o.dispatcher == nil {
		o.dispatcher = runner.New(cfg.Server.MaxConcurrentRuns, runner.WithLogger(o.logger))
	}
	if o.fetcher == nil && cfg.DataSource.Preview {
		o.fetcher = datasource.NewFetcher(nil)
	}
	return o, nil
}

func defaultProvider(ctx context.Context, cfg config.ModelConfig) (agent.LLMClient, error) {
	c, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Sessions returns the session registry.
func (o *Orchestrator) Sessions() *session.Manager {
	return o.sessions
}

// HandleIncomingMessage routes a user message into the session's group
// conversation. With no messages yet it starts a conversation on text; below
// the round budget it injects text as the next human turn; at or above the
// budget it injects "exit" instead. Runs are dispatched in the background
// holding the session's turn slot. Failures are also published to the UI as
// error entries.
func (o *Orchestrator) HandleIncomingMessage(ctx context.Context, sessionID, text string) (err error) {
	ctx, span := telemetry.StartSession(ctx, o.tracer, "orchestrator.incoming", sessionID)
	defer func() { telemetry.End(span, err) }()

	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		o.logger.WarnContext(ctx, "message for unknown session", "session_id", sessionID)
		return fmt.Errorf("session %s: %w", sessionID, errorskg.ErrSessionNotInitialized)
	}
	defer func() {
		if err != nil {
			o.publishError(ctx, sess, err)
		}
	}()

	handles, err := o.ensureHandles(ctx, sess)
	if err != nil {
		return err
	}

	if err := sess.Acquire(ctx); err != nil {
		return fmt.Errorf("session %s: wait for turn: %w", sessionID, err)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			sess.Release()
		}
	}()

	mgr := sess.Chat()
	n := sess.MessageCount()
	span.SetAttributes(telemetry.AttrMessages.Int(n))

	switch {
	case n == 0:
		mgr, err = o.newConversation(sess, handles)
		if err != nil {
			return err
		}
		o.metrics.Incoming(BranchStart)
		span.SetAttributes(telemetry.AttrBranch.String(BranchStart))
		o.metrics.ConversationStarted()
		o.publish(ctx, sess, ui.Notice(fmt.Sprintf("Starting agents on task: %s...", text)))
		if err := o.inject(ctx, handles, mgr, text); err != nil {
			return err
		}

	case n < mgr.Chat().MaxRound():
		o.metrics.Incoming(BranchContinue)
		span.SetAttributes(telemetry.AttrBranch.String(BranchContinue))
		if err := o.inject(ctx, handles, mgr, text); err != nil {
			return err
		}

	default:
		o.metrics.Incoming(BranchExit)
		span.SetAttributes(telemetry.AttrBranch.String(BranchExit))
		o.logger.InfoContext(ctx, "round budget spent, ending conversation",
			"session_id", sessionID, "messages", n, "max_round", mgr.Chat().MaxRound())
		return o.inject(ctx, handles, mgr, message.ExitPhrase)
	}

	handedOff = true
	o.dispatcher.Go(sess.Context(), sessionID, func(ctx context.Context) error {
		return o.run(ctx, sess, mgr)
	}, sess.Release)
	return nil
}

// newConversation creates the session's group conversation over its handles.
func (o *Orchestrator) newConversation(sess *session.Session, handles *session.Handles) (*groupchat.Manager, error) {
	chat, err := groupchat.New(handles.Participants(), o.cfg.RoundBudget)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID(), err)
	}
	opts := []groupchat.ManagerOption{groupchat.WithLogger(o.logger.With("session_id", sess.ID()))}
	if o.cfg.SpeakerSelection == config.SpeakerAuto {
		if rt := o.runtime(sess.ID()); rt != nil && rt.llm != nil {
			opts = append(opts, groupchat.WithSelector(groupchat.NewAuto(rt.llm, o.prompts)))
		}
	}
	mgr := groupchat.NewManager(chat, opts...)
	sess.SetChat(mgr)
	return mgr, nil
}

// inject sends text from the user proxy to the chat manager as a human turn.
func (o *Orchestrator) inject(ctx context.Context, handles *session.Handles, mgr *groupchat.Manager, text string) error {
	msg := handles.UserProxy.NewMessage(text).WithSource(message.SourceHuman)
	if err := handles.UserProxy.Send(ctx, msg, mgr); err != nil {
		return fmt.Errorf("inject message: %w", err)
	}
	return nil
}

// run drives one autonomous stretch of the conversation and archives the
// session afterwards.
func (o *Orchestrator) run(ctx context.Context, sess *session.Session, mgr *groupchat.Manager) (err error) {
	ctx, span := telemetry.StartSession(ctx, o.tracer, "orchestrator.run", sess.ID())
	defer func() { telemetry.End(span, err) }()

	outcome, err := mgr.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			o.logger.DebugContext(ctx, "run stopped with session", "session_id", sess.ID())
			o.metrics.RunFinished("cancelled")
			return nil
		}
		o.metrics.RunFinished("error")
		o.publishError(ctx, sess, err)
		return err
	}

	sess.SetOutcome(outcome)
	o.metrics.RunFinished(string(outcome))
	o.logger.InfoContext(ctx, "run finished",
		"session_id", sess.ID(), "outcome", string(outcome), "messages", mgr.Chat().Len())
	if err := o.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		o.logger.WarnContext(ctx, "archive transcript failed", "session_id", sess.ID(), "error", err)
	}
	return nil
}

// WaitIdle blocks until the session has no turn in flight.
func (o *Orchestrator) WaitIdle(ctx context.Context, sessionID string) error {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.WaitIdle(ctx)
}

// OnSessionEnd cancels the session's work, archives its transcript and
// removes it.
func (o *Orchestrator) OnSessionEnd(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	rt := o.runtimes[sessionID]
	delete(o.runtimes, sessionID)
	o.mu.Unlock()

	err := o.sessions.Delete(ctx, sessionID)
	if rt != nil {
		for _, c := range rt.closers {
			if cerr := c.Close(); cerr != nil {
				o.logger.WarnContext(ctx, "release session resource failed", "session_id", sessionID, "error", cerr)
			}
		}
	}
	if err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	return nil
}

// Close ends every live session, then waits until the dispatcher's runs
// have returned or ctx is done.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	for _, id := range o.sessions.List() {
		if err := o.OnSessionEnd(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if w, ok := o.dispatcher.(waiter); ok {
		if err := w.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for runs: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) runtime(id string) *runtime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtimes[id]
}

func (o *Orchestrator) publish(ctx context.Context, sess *session.Session, e ui.Entry) {
	e.SessionID = sess.ID()
	if err := sess.Channel().Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.WarnContext(ctx, "publish entry failed", "session_id", sess.ID(), "kind", string(e.Kind), "error", err)
	}
}

func (o *Orchestrator) publishError(ctx context.Context, sess *session.Session, err error) {
	o.logger.ErrorContext(ctx, "orchestration failed", "session_id", sess.ID(), "error", err)
	o.publish(ctx, sess, ui.Error(err))
}
