package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the parsed inbound envelope. Type selects the handler;
// everything else stays in Fields until the owning handler decodes it
// into its typed payload (see service/chat/handlers).
type Frame struct {
	Type      string
	RequestID string
	Fields    map[string]any
}

// ParseFrame decodes one wire frame. The type tag may legitimately be
// absent; dispatch reports that as missing_type rather than failing here.
func ParseFrame(raw []byte) (*Frame, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	f := &Frame{Fields: fields}
	if t, ok := fields["type"].(string); ok {
		f.Type = t
	}
	if r, ok := fields["request_id"].(string); ok {
		f.RequestID = r
	}
	return f, nil
}

// Inbound message types.
const (
	TypeHeartbeat     = "heartbeat"
	TypeChatMessage   = "chat.message"
	TypeContextUpdate = "context.update"
	TypePing          = "ping"
)

// Error codes reported back to the sender.
const (
	CodeMissingType  = "missing_type"
	CodeUnknownType  = "unknown_type"
	CodeHandlerError = "handler_error"
	CodeInvalidJSON  = "invalid_json"
)

// Connection status values.
const (
	StatusConnected  = "connected"
	StatusProcessing = "processing"
	StatusIdle       = "idle"
	StatusError      = "error"
)

// ---- 服务端出站消息 ----

type StatusMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type HeartbeatAck struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	RequestID string    `json:"request_id"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

type ContextAck struct {
	Type     string `json:"type"`
	Received int    `json:"received"`
}

type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func BuildStatus(status, message string) StatusMessage {
	return StatusMessage{Type: "status", Status: status, Message: message}
}

// BuildConnectedStatus is the first frame every accepted connection sees.
func BuildConnectedStatus(sessionID string) StatusMessage {
	return StatusMessage{
		Type:      "status",
		Status:    StatusConnected,
		SessionID: sessionID,
		Message:   "Connection established",
	}
}

func BuildHeartbeatAck() HeartbeatAck {
	return HeartbeatAck{Type: "heartbeat_ack"}
}

func BuildChatResponse(content, requestID, model string, ts time.Time) ChatResponse {
	return ChatResponse{
		Type:      "chat.response",
		Content:   content,
		RequestID: requestID,
		Model:     model,
		Timestamp: ts,
	}
}

func BuildContextAck(received int) ContextAck {
	return ContextAck{Type: "context.ack", Received: received}
}

func BuildPong(ts time.Time) Pong {
	return Pong{Type: "pong", Timestamp: ts}
}

func BuildError(code, errMsg, requestID string) ErrorMessage {
	return ErrorMessage{Type: "error", Error: errMsg, Code: code, RequestID: requestID}
}
