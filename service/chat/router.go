package chat

import (
	"fmt"
	"time"

	"mdzgate/logger"
	"mdzgate/service/storage"
)

// Context carries the collaborators handlers may call back into.
type Context struct {
	Mgr        *ConnManager
	Store      storage.SessionStore
	SessionTTL time.Duration
	Clock      func() time.Time
}

func (c *Context) Now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Handler binds one message-type tag to one conversational behavior.
// New handlers plug in through Dispatcher.Register without touching the
// router or the registry.
type Handler interface {
	Type() string
	Handle(ctx *Context, f *Frame, conn *WsConn) error
}

// Dispatcher maps message-type tags to handlers. The table is assembled
// once at startup (see main.go); re-registering a tag overwrites the
// previous binding.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

// Dispatch routes one inbound frame to exactly one handler. Every failure
// mode is reported back to the sender as a typed error on the same
// connection; the connection itself is never torn down here.
func (d *Dispatcher) Dispatch(ctx *Context, f *Frame, conn *WsConn) {
	if f.Type == "" {
		d.sendError(conn, CodeMissingType, "Message type is required", f.RequestID)
		return
	}

	h, ok := d.handlers[f.Type]
	if !ok {
		d.sendError(conn, CodeUnknownType, fmt.Sprintf("Unknown message type: %s", f.Type), f.RequestID)
		return
	}

	if err := h.Handle(ctx, f, conn); err != nil {
		logger.Errorf("[router] handler error type=%s conn_id=%s: %v", f.Type, conn.ConnID, err)
		d.sendError(conn, CodeHandlerError, err.Error(), f.RequestID)
	}
}

func (d *Dispatcher) sendError(conn *WsConn, code, errMsg, requestID string) {
	if err := conn.WriteJSON(BuildError(code, errMsg, requestID)); err != nil {
		logger.Warnf("[router] error write failed conn_id=%s code=%s: %v", conn.ConnID, code, err)
	}
}
