package handlers

import (
	"fmt"

	"mdzgate/logger"
	"mdzgate/service/chat"
	"mdzgate/tools/decode"
)

// DefaultModel is the model tag echoed back when the client names none.
const DefaultModel = "meta-llama/Llama-2-7b-chat-hf"

// ChatMessagePayload is the typed body of a chat.message frame.
type ChatMessagePayload struct {
	Content   string         `json:"content"`
	Context   map[string]any `json:"context"`
	Model     string         `json:"model"`
	RequestID string         `json:"request_id"`
}

type ChatMessageHandler struct{}

func NewChatMessageHandler() chat.Handler { return &ChatMessageHandler{} }

func (h *ChatMessageHandler) Type() string { return chat.TypeChatMessage }

// Handle runs the three-message choreography: processing status, one
// chat.response correlated by request_id, idle status. The generation
// backend is an external collaborator; the response here is synthesized.
func (h *ChatMessageHandler) Handle(ctx *chat.Context, f *chat.Frame, conn *chat.WsConn) error {
	payload, err := decode.DecodeMap[ChatMessagePayload](f.Fields)
	if err != nil {
		return err
	}
	requestID := payload.RequestID
	if requestID == "" {
		requestID = f.RequestID
	}
	model := payload.Model
	if model == "" {
		model = DefaultModel
	}

	logger.Infof("[chat] message received user_id=%d request_id=%s model=%s", conn.UserID, requestID, model)

	if err := conn.WriteJSON(chat.BuildStatus(chat.StatusProcessing, "Processing your request...")); err != nil {
		return err
	}

	content := fmt.Sprintf("Context: %v, \nContext items: %d\nMessage: %s ",
		payload.Context, len(payload.Context), payload.Content)

	if err := conn.WriteJSON(chat.BuildChatResponse(content, requestID, model, ctx.Now())); err != nil {
		return err
	}

	return conn.WriteJSON(chat.BuildStatus(chat.StatusIdle, ""))
}
