package handlers

import (
	"mdzgate/service/chat"
)

type PingHandler struct{}

func NewPingHandler() chat.Handler { return &PingHandler{} }

func (h *PingHandler) Type() string { return chat.TypePing }

func (h *PingHandler) Handle(ctx *chat.Context, f *chat.Frame, conn *chat.WsConn) error {
	return conn.WriteJSON(chat.BuildPong(ctx.Now()))
}
