package groupchat

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/prompt"
)

// SpeakerSelector picks the next participant to reply.
type SpeakerSelector interface {
	Select(ctx context.Context, chat *GroupChat, last string) (Participant, error)
}

// RoundRobin hands the turn to the participant after last.
type RoundRobin struct{}

func (RoundRobin) Select(_ context.Context, chat *GroupChat, last string) (Participant, error) {
	ps := chat.participants
	for i, p := range ps {
		if p.Name() == last {
			return ps[(i+1)%len(ps)], nil
		}
	}
	return ps[0], nil
}

// Auto asks a model to role-play the next speaker and falls back to round
// robin when the answer names no single participant.
type Auto struct {
	llm      agent.LLMClient
	prompts  *prompt.Manager
	fallback RoundRobin
	logger   *slog.Logger
}

// NewAuto creates a model-driven selector.
func NewAuto(llm agent.LLMClient, prompts *prompt.Manager) *Auto {
	if prompts == nil {
		prompts = prompt.Defaults()
	}
	return &Auto{
		llm:     llm,
		prompts: prompts,
		logger:  logging.WithComponent("groupchat").With("selector", "auto"),
	}
}

func (a *Auto) Select(ctx context.Context, chat *GroupChat, last string) (Participant, error) {
	if a.llm == nil || len(chat.participants) < 3 {
		return a.fallback.Select(ctx, chat, last)
	}

	req, err := a.request(chat)
	if err != nil {
		return nil, err
	}
	resp, err := a.llm.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.WarnContext(ctx, "speaker selection failed, using round robin", "error", err)
		return a.fallback.Select(ctx, chat, last)
	}
	if resp != nil && resp.Message != nil {
		if p := pickMentioned(chat, resp.Message.Content); p != nil {
			return p, nil
		}
		a.logger.DebugContext(ctx, "speaker selection ambiguous, using round robin", "answer", resp.Message.Content)
	}
	return a.fallback.Select(ctx, chat, last)
}

func (a *Auto) request(chat *GroupChat) (*agent.GenerateRequest, error) {
	roles := prompt.NewBuilder()
	for i, p := range chat.participants {
		if i > 0 {
			roles.Add("\n")
		}
		roles.AddFormat("%s: %s", p.Name(), p.Description())
	}
	names := "[" + strings.Join(chat.Names(), ", ") + "]"

	system, err := a.prompts.Render(prompt.SelectSpeaker, map[string]any{
		"Roles": roles.Build(),
		"Names": names,
	})
	if err != nil {
		return nil, err
	}
	next, err := a.prompts.Render(prompt.SelectNext, map[string]any{"Names": names})
	if err != nil {
		return nil, err
	}

	history := chat.Messages()
	msgs := make([]*message.Message, 0, len(history)+1)
	for _, m := range history {
		c := message.Clone(m)
		c.Role = message.RoleUser
		msgs = append(msgs, c)
	}
	msgs = append(msgs, message.NewMessage(message.RoleSystem, next))

	return &agent.GenerateRequest{SystemPrompt: system, Messages: msgs}, nil
}

// pickMentioned returns the participant named by answer: an exact match, or
// the only participant mentioned anywhere in it.
func pickMentioned(chat *GroupChat, answer string) Participant {
	answer = strings.TrimSpace(answer)
	if p, ok := chat.Participant(answer); ok {
		return p
	}

	var found Participant
	for _, p := range chat.participants {
		re := regexp.MustCompile(`(^|\W)` + regexp.QuoteMeta(p.Name()) + `(\W|$)`)
		if re.MatchString(answer) {
			if found != nil {
				return nil
			}
			found = p
		}
	}
	return found
}
