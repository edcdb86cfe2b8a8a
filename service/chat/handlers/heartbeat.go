package handlers

import (
	"context"
	"time"

	"mdzgate/service/chat"
)

const storeTimeout = 2 * time.Second

type HeartbeatHandler struct{}

func NewHeartbeatHandler() chat.Handler { return &HeartbeatHandler{} }

func (h *HeartbeatHandler) Type() string { return chat.TypeHeartbeat }

// Handle refreshes the SessionRecord's last_heartbeat and its expiry,
// then acknowledges. The sweeper uses exactly this timestamp.
func (h *HeartbeatHandler) Handle(ctx *chat.Context, f *chat.Frame, conn *chat.WsConn) error {
	sctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := ctx.Store.Touch(sctx, conn.ConnID, conn.UserID, ctx.Now(), ctx.SessionTTL); err != nil {
		return err
	}
	return conn.WriteJSON(chat.BuildHeartbeatAck())
}
