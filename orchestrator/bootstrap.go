package orchestrator

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/codeexec"
	"github.com/sweetpotato0/ai-groupchat/config"
	"github.com/sweetpotato0/ai-groupchat/contrib/tokenizer/tiktoken"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/humaninput"
	"github.com/sweetpotato0/ai-groupchat/middleware/errorhandler"
	"github.com/sweetpotato0/ai-groupchat/middleware/logger"
	"github.com/sweetpotato0/ai-groupchat/middleware/validator"
	"github.com/sweetpotato0/ai-groupchat/pkg/telemetry"
	"github.com/sweetpotato0/ai-groupchat/prompt"
	"github.com/sweetpotato0/ai-groupchat/relay"
	"github.com/sweetpotato0/ai-groupchat/session"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Agent names as they appear in the transcript.
const (
	QueryAgentName    = "Query_Agent"
	CodePlannerName   = "Code_Planner"
	CodeRunnerName    = "Code_Runner"
	AnalysisAgentName = "Analysis_Agent"
)

func defaultExecutor(cfg config.ExecutionConfig) (agent.CodeExecutor, error) {
	e, err := codeexec.New(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DefaultTokenizer counts tokens with the model's tiktoken encoding.
func DefaultTokenizer(model string) (agent.TokenCounter, error) {
	t, err := tiktoken.ForModel(model)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// OnSessionStart registers the session with its UI channel, builds its
// agents and greets the user. A failed bootstrap leaves the session
// registered without agents; the next message retries once.
func (o *Orchestrator) OnSessionStart(ctx context.Context, sessionID string, channel ui.Channel) error {
	sess, err := o.sessions.Create(ctx, sessionID, channel)
	if err != nil {
		o.metrics.SessionStarted(false)
		return err
	}
	if err := o.bootstrap(ctx, sess); err != nil {
		o.metrics.SessionStarted(false)
		sess.BootstrapFailed(err)
		o.publishError(ctx, sess, err)
		return err
	}
	o.metrics.SessionStarted(true)
	return nil
}

// ensureHandles returns the session's agents, retrying a failed bootstrap
// once.
func (o *Orchestrator) ensureHandles(ctx context.Context, sess *session.Session) (*session.Handles, error) {
	if h := sess.Handles(); h != nil {
		return h, nil
	}
	if sess.TakeRetry() {
		o.logger.InfoContext(ctx, "retrying session bootstrap", "session_id", sess.ID())
		err := o.bootstrap(ctx, sess)
		if err == nil {
			return sess.Handles(), nil
		}
		sess.BootstrapFailed(err)
		return nil, fmt.Errorf("session %s: %w: %v", sess.ID(), errorskg.ErrSessionNotInitialized, err)
	}
	if cause := sess.BootstrapErr(); cause != nil {
		return nil, fmt.Errorf("session %s: %w: %v", sess.ID(), errorskg.ErrSessionNotInitialized, cause)
	}
	return nil, fmt.Errorf("session %s: %w", sess.ID(), errorskg.ErrSessionNotInitialized)
}

// bootstrap builds the four agent handles of sess and publishes the welcome
// message.
func (o *Orchestrator) bootstrap(ctx context.Context, sess *session.Session) (err error) {
	ctx, span := telemetry.StartSession(ctx, o.tracer, "orchestrator.bootstrap", sess.ID())
	defer func() { telemetry.End(span, err) }()

	modelCfg, err := config.ResolveModel(o.cfg)
	if err != nil {
		return fmt.Errorf("session %s: model config: %w", sess.ID(), err)
	}
	span.SetAttributes(telemetry.AttrModel.String(modelCfg.Model))
	client, err := o.newLLM(ctx, modelCfg)
	if err != nil {
		return fmt.Errorf("session %s: model client: %w", sess.ID(), err)
	}
	rt := &runtime{llm: client}
	if c, ok := client.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	defer func() {
		if err != nil {
			for _, c := range rt.closers {
				_ = c.Close()
			}
		}
	}()

	executor, err := o.newExec(o.cfg.Execution)
	if err != nil {
		return fmt.Errorf("session %s: code executor: %w", sess.ID(), err)
	}

	channel := sess.Channel()
	common := []agent.Option{
		agent.WithLogger(o.logger),
		agent.WithMiddleware(errorhandler.NewErrorHandler(nil)),
		agent.WithMiddleware(logger.NewSendLogger(o.logger)),
		agent.WithMiddleware(validator.NewEnvelopeValidator()),
		agent.WithMiddleware(relay.New(channel,
			relay.WithSessionID(sess.ID()),
			relay.WithMetrics(o.metrics),
			relay.WithLogger(o.logger))),
	}
	if o.cfg.MaxContextTokens > 0 && o.newTokens != nil {
		counter, terr := o.newTokens(modelCfg.Model)
		if terr != nil {
			o.logger.WarnContext(ctx, "token counter unavailable, context is not trimmed", "model", modelCfg.Model, "error", terr)
		} else {
			common = append(common, agent.WithTokenLimit(counter, o.cfg.MaxContextTokens))
		}
	}

	prompts, err := o.rolePrompts(ctx)
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID(), err)
	}

	bridge := humaninput.New(channel,
		humaninput.WithTimeout(o.cfg.HumanInput.Timeout),
		humaninput.WithMaxAttempts(o.cfg.HumanInput.MaxAttempts),
		humaninput.WithMetrics(o.metrics),
		humaninput.WithLogger(o.logger))

	with := func(extra ...agent.Option) []agent.Option {
		return append(slices.Clip(common), extra...)
	}

	handles := &session.Handles{}
	if handles.UserProxy, err = agent.New(QueryAgentName, agent.RoleUserProxy, with(
		agent.WithSystemPrompt(prompts[prompt.QueryAgent]),
		agent.WithDescription("Human admin who states the task and approves plans."),
		agent.WithHumanInput(bridge),
	)...); err != nil {
		return err
	}
	if handles.Planner, err = agent.New(CodePlannerName, agent.RolePlanner, with(
		agent.WithSystemPrompt(prompts[prompt.CodePlanner]),
		agent.WithDescription("Engineer who writes python or shell code for the task."),
		agent.WithProvider(client),
	)...); err != nil {
		return err
	}
	if handles.Runner, err = agent.New(CodeRunnerName, agent.RoleRunner, with(
		agent.WithSystemPrompt(prompts[prompt.CodeRunner]),
		agent.WithDescription("Executes the planner's code and reports the result."),
		agent.WithProvider(client),
		agent.WithCodeExecutor(executor),
	)...); err != nil {
		return err
	}
	if handles.Analyzer, err = agent.New(AnalysisAgentName, agent.RoleAnalyzer, with(
		agent.WithSystemPrompt(prompts[prompt.AnalysisAgent]),
		agent.WithDescription("Summarises the data produced by the runner."),
		agent.WithProvider(client),
	)...); err != nil {
		return err
	}

	o.mu.Lock()
	o.runtimes[sess.ID()] = rt
	o.mu.Unlock()
	sess.SetHandles(handles)
	sess.SetMetadata("model", modelCfg.Model)

	o.publish(ctx, sess, ui.NewEntry(QueryAgentName, prompts[prompt.Welcome]))
	o.logger.InfoContext(ctx, "session bootstrapped", "session_id", sess.ID(), "model", modelCfg.Model)
	return nil
}

// rolePrompts renders the system prompt of every role plus the welcome text.
func (o *Orchestrator) rolePrompts(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, 5)
	for _, name := range []string{prompt.QueryAgent, prompt.CodeRunner, prompt.AnalysisAgent, prompt.Welcome} {
		text, err := o.prompts.Render(name, nil)
		if err != nil {
			return nil, fmt.Errorf("render prompt %s: %w", name, err)
		}
		out[name] = text
	}
	planner, err := o.prompts.PlannerPrompt(o.cfg.DataSource.URL, o.preview(ctx))
	if err != nil {
		return nil, fmt.Errorf("render planner prompt: %w", err)
	}
	out[prompt.CodePlanner] = planner
	return out, nil
}

// preview summarises the configured data source once per URL. A failed fetch
// is logged and yields no preview.
func (o *Orchestrator) preview(ctx context.Context) string {
	url := o.cfg.DataSource.URL
	if o.fetcher == nil || url == "" {
		return ""
	}
	o.mu.Lock()
	cached, ok := o.previews[url]
	o.mu.Unlock()
	if ok {
		return cached
	}

	summary, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		o.logger.WarnContext(ctx, "data source preview failed", "url", url, "error", err)
		return ""
	}
	text := summary.String()
	o.mu.Lock()
	o.previews[url] = text
	o.mu.Unlock()
	return text
}
