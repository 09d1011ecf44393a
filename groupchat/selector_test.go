package groupchat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-groupchat/agent"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

type stubLLM struct {
	answer string
	err    error
	reqs   []*agent.GenerateRequest
}

func (s *stubLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, s.answer)}, nil
}

func fourAgents(t *testing.T) *GroupChat {
	t.Helper()
	chat, err := New([]Participant{
		&scripted{name: "Query_Agent"},
		&scripted{name: "Code_Planner"},
		&scripted{name: "Code_Runner"},
		&scripted{name: "Analysis_Agent"},
	}, 50)
	if err != nil {
		t.Fatal(err)
	}
	return chat
}

func TestRoundRobin(t *testing.T) {
	chat := fourAgents(t)
	tests := []struct {
		last string
		want string
	}{
		{"", "Query_Agent"},
		{"Query_Agent", "Code_Planner"},
		{"Analysis_Agent", "Query_Agent"},
		{"unknown", "Query_Agent"},
	}
	for _, tt := range tests {
		p, _ := RoundRobin{}.Select(context.Background(), chat, tt.last)
		if p.Name() != tt.want {
			t.Errorf("after %q got %s, want %s", tt.last, p.Name(), tt.want)
		}
	}
}

func TestAutoSelector(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		want   string
	}{
		{name: "exact name", answer: "Code_Runner", want: "Code_Runner"},
		{name: "single mention", answer: "The next role is Analysis_Agent.", want: "Analysis_Agent"},
		{name: "ambiguous falls back", answer: "Code_Runner or Code_Planner", want: "Code_Planner"},
		{name: "unknown falls back", answer: "nobody", want: "Code_Planner"},
		{name: "error falls back", err: errors.New("429"), want: "Code_Planner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := fourAgents(t)
			llm := &stubLLM{answer: tt.answer, err: tt.err}
			sel := NewAuto(llm, nil)
			sel.logger = logging.Discard()

			p, err := sel.Select(context.Background(), chat, "Query_Agent")
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Select() = %s, want %s", p.Name(), tt.want)
			}
		})
	}
}

func TestAutoSelectorPrompt(t *testing.T) {
	chat := fourAgents(t)
	_, mgr := chat, NewManager(chat, WithLogger(logging.Discard()))
	_ = mgr.Receive(context.Background(), human("Query_Agent", "summarise the menu"))

	llm := &stubLLM{answer: "Code_Planner"}
	if _, err := NewAuto(llm, nil).Select(context.Background(), chat, "Query_Agent"); err != nil {
		t.Fatal(err)
	}

	req := llm.reqs[0]
	if !strings.Contains(req.SystemPrompt, "You are in a role play game") ||
		!strings.Contains(req.SystemPrompt, "Code_Runner: Code_Runner role") ||
		!strings.Contains(req.SystemPrompt, "[Query_Agent, Code_Planner, Code_Runner, Analysis_Agent]") {
		t.Errorf("unexpected system prompt:\n%s", req.SystemPrompt)
	}
	if len(req.Messages) != 2 || req.Messages[0].Content != "summarise the menu" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
	if !strings.HasPrefix(req.Messages[1].Content, "Read the above conversation.") {
		t.Errorf("missing selection instruction: %q", req.Messages[1].Content)
	}
}

func TestAutoSelectorSmallChatUsesRoundRobin(t *testing.T) {
	chat, _ := New([]Participant{&scripted{name: "a"}, &scripted{name: "b"}}, 5)
	llm := &stubLLM{answer: "a"}
	p, err := NewAuto(llm, nil).Select(context.Background(), chat, "a")
	if err != nil || p.Name() != "b" {
		t.Errorf("Select() = %v, %v", p, err)
	}
	if len(llm.reqs) != 0 {
		t.Error("model should not be consulted for two participants")
	}
}
