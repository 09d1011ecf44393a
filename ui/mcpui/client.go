package mcpui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// ErrClientClosed is returned when the client has been closed.
var ErrClientClosed = errors.New("mcpui: client closed")

// ToolError is returned when the server reports a failed tool call.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Name, e.Message)
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	implementation sdkmcp.Implementation
	httpClient     *http.Client
	logger         *slog.Logger
}

// WithHTTPClient supplies the HTTP client used by the transport.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// Page is a slice of a session transcript.
type Page struct {
	SessionID string     `json:"session_id"`
	Next      int        `json:"next"`
	Entries   []ui.Entry `json:"entries"`
}

// SendOptions carries the optional send_message arguments.
type SendOptions struct {
	Wait     bool
	Actions  []string
	Feedback []string
}

// Client drives a remote chat over MCP.
type Client struct {
	session *sdkmcp.ClientSession
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewClient connects to the chat server at endpoint over the streamable HTTP
// transport.
func NewClient(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcpui: endpoint cannot be empty")
	}
	cfg := clientConfig{
		implementation: sdkmcp.Implementation{Name: "ai-groupchat-client", Version: "0.1.0"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.WithComponent("mcpui_client")
	}

	client := &Client{logger: cfg.logger, done: make(chan struct{})}
	sdkClient := sdkmcp.NewClient(&cfg.implementation, &sdkmcp.ClientOptions{
		LoggingMessageHandler: func(ctx context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				client.logger.DebugContext(ctx, "mcp server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
	})

	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	if cfg.httpClient != nil {
		transport.HTTPClient = cfg.httpClient
	}
	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpui: connect failed: %w", err)
	}
	client.session = session
	go client.monitorSession()
	return client, nil
}

// StartSession opens a session; an empty id lets the server pick one.
func (c *Client) StartSession(ctx context.Context, sessionID string) (*Page, error) {
	args := map[string]any{}
	if sessionID != "" {
		args["session_id"] = sessionID
	}
	return c.page(ctx, ToolStartSession, args)
}

// SendMessage sends text and returns the entries it produced.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string, opts SendOptions) (*Page, error) {
	args := map[string]any{"session_id": sessionID, "text": text, "wait": opts.Wait}
	if len(opts.Actions) > 0 {
		args["actions"] = opts.Actions
	}
	if len(opts.Feedback) > 0 {
		args["feedback"] = opts.Feedback
	}
	return c.page(ctx, ToolSendMessage, args)
}

// Transcript returns entries from index since on.
func (c *Client) Transcript(ctx context.Context, sessionID string, since int) (*Page, error) {
	return c.page(ctx, ToolGetTranscript, map[string]any{"session_id": sessionID, "since": since})
}

// EndSession closes a session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	_, err := c.CallTool(ctx, ToolEndSession, map[string]any{"session_id": sessionID})
	return err
}

func (c *Client) page(ctx context.Context, name string, args map[string]any) (*Page, error) {
	text, err := c.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	var p Page
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("mcpui: decode %s result: %w", name, err)
	}
	return &p, nil
}

// CallTool invokes a tool and returns its text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	select {
	case <-c.done:
		return "", ErrClientClosed
	default:
	}
	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	message := normalizeContent(result.Content)
	if result.IsError {
		if message == "" {
			message = "tool returned error without message"
		}
		return "", &ToolError{Name: name, Message: message}
	}
	return message, nil
}

// Close terminates the session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		close(c.done)
	})
	return c.closeErr
}

func (c *Client) monitorSession() {
	if err := c.session.Wait(); err != nil && !errors.Is(err, sdkmcp.ErrConnectionClosed) {
		c.logger.Warn("mcp session ended with error", "error", err)
	}
	_ = c.Close()
}

func normalizeContent(content []sdkmcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
