// Package mcpui exposes the group chat as MCP tools so agents and scripts can
// drive a conversation without a browser. Each session is backed by a
// ui.Transcript; human input asks are answered from queued replies, falling
// back to continue.
package mcpui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/ai-groupchat/humaninput"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Tool names
const (
	ToolStartSession  = "start_session"
	ToolSendMessage   = "send_message"
	ToolGetTranscript = "get_transcript"
	ToolEndSession    = "end_session"
)

// Orchestrator is what the MCP front end drives.
type Orchestrator interface {
	OnSessionStart(ctx context.Context, sessionID string, channel ui.Channel) error
	HandleIncomingMessage(ctx context.Context, sessionID, text string) error
	WaitIdle(ctx context.Context, sessionID string) error
	OnSessionEnd(ctx context.Context, sessionID string) error
}

// Server serves the chat tools over the streamable HTTP transport.
type Server struct {
	orchestrator Orchestrator
	server       *mcp.Server
	waitTimeout  time.Duration
	logger       *slog.Logger

	mu          sync.Mutex
	transcripts map[string]*ui.Transcript
}

// Option configures a Server
type Option func(*Server)

// WithWaitTimeout bounds how long send_message waits for the agents.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithLogger sets the server logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the MCP server and registers the chat tools.
func NewServer(orch Orchestrator, opts ...Option) *Server {
	s := &Server{
		orchestrator: orch,
		waitTimeout:  5 * time.Minute,
		transcripts:  make(map[string]*ui.Transcript),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("mcpui")
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "ai-groupchat",
		Version: "0.1.0",
		Title:   "Data analysis group chat",
	}, nil)
	s.addStartSession()
	s.addSendMessage()
	s.addGetTranscript()
	s.addEndSession()
	return s
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) transcript(id string) (*ui.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return t, nil
}

func (s *Server) addStartSession() {
	type args struct {
		SessionID string `json:"session_id,omitempty" jsonschema:"Optional session id, generated when empty"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolStartSession,
		Description: "Open a group chat session and return its id and welcome message",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(a.SessionID)
		if id == "" {
			id = "mcp_" + uuid.NewString()[:8]
		}
		t := ui.NewTranscript()
		t.SetDefaultAction(humaninput.ActionContinue)

		s.mu.Lock()
		if _, ok := s.transcripts[id]; ok {
			s.mu.Unlock()
			return nil, nil, fmt.Errorf("session %q is already open", id)
		}
		s.transcripts[id] = t
		s.mu.Unlock()

		if err := s.orchestrator.OnSessionStart(ctx, id, t); err != nil {
			// A failed bootstrap keeps the session; the next message retries.
			s.logger.WarnContext(ctx, "session start failed", "session_id", id, "error", err)
			if t.Len() == 0 {
				s.mu.Lock()
				delete(s.transcripts, id)
				s.mu.Unlock()
				return nil, nil, err
			}
		}
		return result(map[string]any{"session_id": id, "entries": t.Entries()})
	})
}

func (s *Server) addSendMessage() {
	type args struct {
		SessionID string   `json:"session_id" jsonschema:"Session returned by start_session"`
		Text      string   `json:"text" jsonschema:"Message for the agents"`
		Wait      bool     `json:"wait,omitempty" jsonschema:"Wait until the agents stop before returning"`
		Actions   []string `json:"actions,omitempty" jsonschema:"Answers for upcoming approval asks: continue, feedback or exit"`
		Feedback  []string `json:"feedback,omitempty" jsonschema:"Answers for upcoming free text asks"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSendMessage,
		Description: "Send a message to the agents of a session and return the new transcript entries",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		t, err := s.transcript(a.SessionID)
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(a.Text) == "" {
			return nil, nil, fmt.Errorf("text is required")
		}
		t.ScriptActions(a.Actions...)
		t.ScriptTexts(a.Feedback...)

		since := t.Len()
		if err := s.orchestrator.HandleIncomingMessage(ctx, a.SessionID, a.Text); err != nil {
			return nil, nil, err
		}
		if a.Wait {
			waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
			defer cancel()
			if err := s.orchestrator.WaitIdle(waitCtx, a.SessionID); err != nil {
				return nil, nil, fmt.Errorf("wait for agents: %w", err)
			}
		}
		return result(map[string]any{"session_id": a.SessionID, "next": t.Len(), "entries": t.Since(since)})
	})
}

func (s *Server) addGetTranscript() {
	type args struct {
		SessionID string `json:"session_id" jsonschema:"Session returned by start_session"`
		Since     int    `json:"since,omitempty" jsonschema:"Index of the first entry to return"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolGetTranscript,
		Description: "Return the transcript entries of a session from an index on",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		t, err := s.transcript(a.SessionID)
		if err != nil {
			return nil, nil, err
		}
		return result(map[string]any{"session_id": a.SessionID, "next": t.Len(), "entries": t.Since(a.Since)})
	})
}

func (s *Server) addEndSession() {
	type args struct {
		SessionID string `json:"session_id" jsonschema:"Session to close"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolEndSession,
		Description: "Close a session and archive its conversation",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a args) (*mcp.CallToolResult, any, error) {
		s.mu.Lock()
		_, ok := s.transcripts[a.SessionID]
		delete(s.transcripts, a.SessionID)
		s.mu.Unlock()
		if !ok {
			return nil, nil, fmt.Errorf("unknown session %q", a.SessionID)
		}
		if err := s.orchestrator.OnSessionEnd(ctx, a.SessionID); err != nil {
			return nil, nil, err
		}
		return result(map[string]any{"session_id": a.SessionID, "closed": true})
	})
}

func result(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
