package handlers

import (
	"mdzgate/logger"
	"mdzgate/service/chat"
	"mdzgate/tools/decode"
)

// ContextUpdatePayload is the typed body of a context.update frame.
type ContextUpdatePayload struct {
	Context map[string]any `json:"context"`
}

type ContextUpdateHandler struct{}

func NewContextUpdateHandler() chat.Handler { return &ContextUpdateHandler{} }

func (h *ContextUpdateHandler) Type() string { return chat.TypeContextUpdate }

func (h *ContextUpdateHandler) Handle(ctx *chat.Context, f *chat.Frame, conn *chat.WsConn) error {
	payload, err := decode.DecodeMap[ContextUpdatePayload](f.Fields)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(payload.Context))
	for k := range payload.Context {
		keys = append(keys, k)
	}
	logger.Infof("[chat] context updated user_id=%d keys=%v", conn.UserID, keys)

	return conn.WriteJSON(chat.BuildContextAck(len(payload.Context)))
}
