// Package ws serves the chat UI over WebSocket and a small HTTP API.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/session"
	"github.com/sweetpotato0/ai-groupchat/ui"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize = 64 << 10
	readTimeout    = 90 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	endTimeout     = 10 * time.Second
)

// Orchestrator is what the UI layer drives.
type Orchestrator interface {
	OnSessionStart(ctx context.Context, sessionID string, channel ui.Channel) error
	HandleIncomingMessage(ctx context.Context, sessionID, text string) error
	OnSessionEnd(ctx context.Context, sessionID string) error
}

// Server handles WebSocket connections and the HTTP API.
type Server struct {
	echo         *echo.Echo
	orchestrator Orchestrator
	sessions     *session.Manager
	upgrader     websocket.Upgrader
	perSecond    float64
	metrics      http.Handler
	logger       *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit bounds inbound user messages per connection
func WithRateLimit(perSecond float64) Option {
	return func(s *Server) {
		s.perSecond = perSecond
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
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

// NewServer creates the UI server and registers its routes.
func NewServer(orch Orchestrator, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		orchestrator: orch,
		sessions:     sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("ws")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", s.handleHealth)
	e.GET("/ws", s.HandleWebSocket)
	api := e.Group("/api/v1")
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	s.echo = e
	return s
}

// Echo returns the router so other handlers can be mounted.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Mount serves h for every method under path.
func (s *Server) Mount(path string, h http.Handler) {
	s.echo.Any(path, echo.WrapHandler(h))
	s.echo.Any(path+"/*", echo.WrapHandler(h))
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// HandleWebSocket upgrades the request and serves the connection.
func (s *Server) HandleWebSocket(c echo.Context) error {
	wsConn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return err
	}
	wsConn.SetReadLimit(maxMessageSize)

	var limiter *rate.Limiter
	if s.perSecond > 0 {
		burst := int(s.perSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.perSecond), burst)
	}
	conn := newConn(wsConn, limiter)
	s.logger.Debug("connection opened", "conn_id", conn.ID)

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Server) readPump(conn *Conn) {
	defer func() {
		conn.Close()
		if id := conn.SessionID(); id != "" {
			ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
			defer cancel()
			if err := s.orchestrator.OnSessionEnd(ctx, id); err != nil && !errors.Is(err, errorskg.ErrNotFound) {
				s.logger.Warn("end session failed", "session_id", id, "error", err)
			}
		}
		s.logger.Debug("connection closed", "conn_id", conn.ID)
	}()

	_ = conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		s.handleFrame(conn, data)
	}
}

func (s *Server) writePump(conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write failed", "conn_id", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.closed:
			return
		}
	}
}

// handleFrame dispatches one client frame.
func (s *Server) handleFrame(conn *Conn, data []byte) {
	var frame BaseFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid JSON frame")
		return
	}

	switch frame.Type {
	case TypeHello:
		s.handleHello(conn, frame)
	case TypeMessage:
		s.handleMessage(conn, data)
	case TypeAskResponse:
		s.handleAskResponse(conn, data)
	default:
		s.sendError(conn, ErrorCodeInvalidMessage, "unknown frame type: "+frame.Type)
	}
}

// handleHello binds the connection to a session and bootstraps it. The ack
// goes out before the welcome entry.
func (s *Server) handleHello(conn *Conn, frame BaseFrame) {
	if conn.SessionID() != "" {
		s.sendError(conn, ErrorCodeInvalidMessage, "session already bound")
		return
	}
	sessionID := frame.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.NewString()[:8]
	}
	if _, err := s.sessions.Get(sessionID); err == nil {
		s.sendError(conn, ErrorCodeSessionExists, "session "+sessionID+" is already open")
		return
	}

	conn.bind(sessionID)
	ctx := context.Background()
	if err := conn.writeJSON(ctx, HelloAckFrame{BaseFrame: base(TypeHelloAck, sessionID)}); err != nil {
		return
	}
	// A failed bootstrap is already published as an error entry and is
	// retried on the next message.
	if err := s.orchestrator.OnSessionStart(ctx, sessionID, conn); err != nil {
		s.logger.Warn("session start failed", "session_id", sessionID, "error", err)
		if errors.Is(err, errorskg.ErrSessionExists) {
			conn.bind("")
			s.sendError(conn, ErrorCodeSessionExists, err.Error())
		}
	}
}

// handleMessage forwards a user message. The orchestrator call waits for the
// session's turn slot, so it runs off the read loop to keep ask responses
// flowing.
func (s *Server) handleMessage(conn *Conn, data []byte) {
	var msg MessageFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid message frame")
		return
	}
	sessionID := conn.SessionID()
	if sessionID == "" {
		s.sendError(conn, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	if conn.limiter != nil && !conn.limiter.Allow() {
		s.sendError(conn, ErrorCodeRateLimited, "too many messages")
		return
	}

	go func() {
		// Failures reach the client as error entries.
		if err := s.orchestrator.HandleIncomingMessage(context.Background(), sessionID, msg.Text); err != nil {
			s.logger.Warn("handle message failed", "session_id", sessionID, "error", err)
		}
	}()
}

func (s *Server) handleAskResponse(conn *Conn, data []byte) {
	var msg AskResponseFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid ask_response frame")
		return
	}
	if !conn.resolve(msg.AskID, msg.Value) {
		s.sendError(conn, ErrorCodeUnknownAsk, "no pending ask "+msg.AskID)
	}
}

func (s *Server) sendError(conn *Conn, code, message string) {
	_ = conn.writeJSON(context.Background(), ErrorFrame{
		BaseFrame: base(TypeError, conn.SessionID()),
		Code:      code,
		Message:   message,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	archived, err := s.sessions.Archived(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"live":     s.sessions.List(),
		"archived": archived,
	})
}

func (s *Server) handleGetSession(c echo.Context) error {
	record, err := s.sessions.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errorskg.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, record)
}
