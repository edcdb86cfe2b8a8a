package chat

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mdzgate/logger"
	"mdzgate/service/storage"
	"mdzgate/tools/security"
)

const maxFrameSize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server ties the registry, the session store and the dispatch table to
// the WebSocket endpoint.
type Server struct {
	mgr     *ConnManager
	store   storage.SessionStore
	disp    *Dispatcher
	jwtOpts security.Options
	hctx    *Context
}

func NewServer(mgr *ConnManager, store storage.SessionStore, disp *Dispatcher, jwtOpts security.Options, sessionTTL time.Duration, clock func() time.Time) *Server {
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		mgr:     mgr,
		store:   store,
		disp:    disp,
		jwtOpts: jwtOpts,
		hctx: &Context{
			Mgr:        mgr,
			Store:      store,
			SessionTTL: sessionTTL,
			Clock:      clock,
		},
	}
}

func (s *Server) Mgr() *ConnManager { return s.mgr }

// HandleWS is the connection endpoint: ws://host/ws?token=<bearer>.
// The token is verified before any registration happens; a bad token
// closes the channel with a policy-violation code and nothing else.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	userID, verr := security.Verify(s.jwtOpts, c.Query("token"))
	if verr != nil {
		logger.Infof("[ws] auth rejected: %v", verr)
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"))
		_ = ws.Close()
		return
	}

	now := s.hctx.Now()
	connID := fmt.Sprintf("ws_%d_%d", userID, now.UnixNano())
	rec := NewWsConn(connID, userID, ws, now)

	if err := s.mgr.Connect(c.Request.Context(), rec); err != nil {
		logger.Errorf("[ws] connect failed conn_id=%s: %v", connID, err)
		rec.CloseWithCode(websocket.CloseInternalServerErr, "session registration failed")
		return
	}

	s.mgr.SendToConn(BuildConnectedStatus(connID), connID)

	s.readLoop(ws, rec)

	// 退出阶段：注销 + 删除会话记录；与 sweeper 的竞争由幂等 Disconnect 兜底
	s.mgr.Disconnect(context.Background(), connID, userID)
	rec.CloseWithCode(websocket.CloseNormalClosure, "")
}

// readLoop processes one connection's inbound stream strictly in order:
// each frame is dispatched to completion before the next read.
func (s *Server) readLoop(ws *websocket.Conn, rec *WsConn) {
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn_id=%s err=%v", rec.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn_id=%s err=%v", rec.ConnID, rerr)
			} else {
				logger.Infof("[ws] read err conn_id=%s err=%v", rec.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] parse err conn_id=%s err=%v sample=%q len=%d",
				rec.ConnID, perr, sample, len(data))
			if werr := rec.WriteJSON(BuildError(CodeInvalidJSON, "Message must be a JSON object", "")); werr != nil {
				logger.Warnf("[ws] error write failed conn_id=%s: %v", rec.ConnID, werr)
			}
			continue
		}

		s.disp.Dispatch(s.hctx, f, rec)
	}
}
