package ws

import (
	"time"

	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Client frame types
const (
	TypeHello       = "hello"
	TypeMessage     = "message"
	TypeAskResponse = "ask_response"
)

// Server frame types
const (
	TypeHelloAck  = "hello_ack"
	TypeEntry     = "entry"
	TypeAskAction = "ask_action"
	TypeAskText   = "ask_text"
	TypeError     = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeSessionExists   = "session_exists"
	ErrorCodeRateLimited     = "rate_limited"
	ErrorCodeUnknownAsk      = "unknown_ask"
)

// BaseFrame carries the fields common to every frame.
type BaseFrame struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func base(typ, sessionID string) BaseFrame {
	return BaseFrame{Type: typ, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}

// HelloFrame opens a session. An empty session id asks the server to
// assign one.
type HelloFrame struct {
	BaseFrame
}

// HelloAckFrame confirms the session bound to the connection.
type HelloAckFrame struct {
	BaseFrame
}

// MessageFrame is a user message for the session's conversation.
type MessageFrame struct {
	BaseFrame
	Text string `json:"text"`
}

// AskResponseFrame answers an ask_action or ask_text frame.
type AskResponseFrame struct {
	BaseFrame
	AskID string `json:"ask_id"`
	Value string `json:"value"`
}

// EntryFrame carries one transcript entry.
type EntryFrame struct {
	BaseFrame
	Entry ui.Entry `json:"entry"`
}

// AskFrame requests an answer from the user.
type AskFrame struct {
	BaseFrame
	AskID     string      `json:"ask_id"`
	Content   string      `json:"content"`
	Actions   []ui.Action `json:"actions,omitempty"`
	TimeoutMs int64       `json:"timeout_ms,omitempty"`
}

// ErrorFrame reports a protocol or orchestration failure.
type ErrorFrame struct {
	BaseFrame
	Code    string `json:"code"`
	Message string `json:"message"`
}
