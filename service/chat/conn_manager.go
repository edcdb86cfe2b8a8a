package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mdzgate/logger"
	"mdzgate/service/storage"
	"mdzgate/tools/safe"
)

// ===== 配置 =====

type ManagerConf struct {
	SessionTTL time.Duration    // SessionRecord 过期时间（如 3600s）
	SweepEvery time.Duration    // 清理周期（如 30s）
	StaleAfter time.Duration    // 心跳超时阈值（如 90s，3×周期）
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * c.SweepEvery
	}
}

// ConnManager owns the connection registry: connID -> live connection, plus
// the per-user index userID -> set of connIDs. Both maps mutate only under
// the single lock, so readers never observe a half-updated registry/index
// pair. Session liveness records live out of process in the SessionStore;
// the manager and the heartbeat handler both write them.
type ConnManager struct {
	mu     sync.RWMutex
	conns  map[string]*WsConn          // 主索引：connID -> conn
	byUser map[int64]map[string]*WsConn // 辅助索引：userID -> (connID -> conn)

	store storage.SessionStore
	conf  ManagerConf

	nodeID      string
	sweepOnce   sync.Once
	sweepCancel context.CancelFunc
}

func NewConnManager(store storage.SessionStore, conf ManagerConf, nodeID string) *ConnManager {
	conf.norm()
	return &ConnManager{
		conns:  make(map[string]*WsConn),
		byUser: make(map[int64]map[string]*WsConn),
		store:  store,
		conf:   conf,
		nodeID: nodeID,
	}
}

func (m *ConnManager) NodeID() string { return m.nodeID }

func (m *ConnManager) now() time.Time { return m.conf.Clock() }

// Connect registers an accepted, authenticated connection, writes its
// initial SessionRecord (lastHeartbeat = now) and starts the liveness
// sweeper on the first registration.
func (m *ConnManager) Connect(ctx context.Context, c *WsConn) error {
	now := m.now()

	m.mu.Lock()
	m.conns[c.ConnID] = c
	if m.byUser[c.UserID] == nil {
		m.byUser[c.UserID] = make(map[string]*WsConn)
	}
	m.byUser[c.UserID][c.ConnID] = c
	m.mu.Unlock()

	rec := &storage.SessionRecord{
		UserID:        c.UserID,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	if err := m.store.Set(ctx, c.ConnID, rec, m.conf.SessionTTL); err != nil {
		// Roll the registration back so the maps and the store agree.
		m.removeLocked(c.ConnID)
		return err
	}

	logger.Infof("[conn] connected conn_id=%s user_id=%d node=%s", c.ConnID, c.UserID, m.nodeID)

	m.sweepOnce.Do(func() {
		sctx, cancel := context.WithCancel(context.Background())
		m.sweepCancel = cancel
		sw := NewSweeper(m, m.store, m.conf.SweepEvery, m.conf.StaleAfter, m.conf.Clock)
		safe.GoRestart(sctx, "liveness-sweeper", sw.Run)
	})
	return nil
}

// Disconnect removes the connection from both indexes and deletes its
// SessionRecord. Calling it again for the same id is a no-op; the race
// between peer-initiated close and sweeper eviction resolves here.
func (m *ConnManager) Disconnect(ctx context.Context, connID string, userID int64) {
	if !m.removeLocked(connID) {
		return
	}
	if err := m.store.Delete(ctx, connID); err != nil {
		logger.Warnf("[conn] session delete failed conn_id=%s: %v", connID, err)
	}
	logger.Infof("[conn] disconnected conn_id=%s user_id=%d", connID, userID)
}

// ForceDrop removes a registry entry whose SessionRecord is already gone.
// No store delete: the key expired on its own.
func (m *ConnManager) ForceDrop(connID string) {
	if m.removeLocked(connID) {
		logger.Warnf("[conn] force dropped conn_id=%s (record already absent)", connID)
	}
}

// removeLocked deletes the connection from both maps under one lock,
// dropping the user's index entry once its set is empty. Reports whether
// the connection was present.
func (m *ConnManager) removeLocked(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.conns[connID]
	if !ok {
		return false
	}
	delete(m.conns, connID)
	if mm := m.byUser[w.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, w.UserID)
		}
	}
	return true
}

// SendToConn delivers one message to one live connection. Unknown ids and
// transport write failures are logged and swallowed; a failed send never
// propagates to the caller.
func (m *ConnManager) SendToConn(msg any, connID string) {
	m.mu.RLock()
	w, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		logger.Infof("[conn] send skipped, unknown conn_id=%s", connID)
		return
	}
	if err := w.WriteJSON(msg); err != nil {
		logger.Warnf("[conn] send failed conn_id=%s: %v", connID, err)
	}
}

// SendToUser fans the message out to every connection the user currently
// owns. Each delivery attempt is independent.
func (m *ConnManager) SendToUser(msg any, userID int64) {
	m.mu.RLock()
	targets := make([]string, 0, len(m.byUser[userID]))
	for connID := range m.byUser[userID] {
		targets = append(targets, connID)
	}
	m.mu.RUnlock()

	for _, connID := range targets {
		m.SendToConn(msg, connID)
	}
}

// Broadcast delivers to every live connection except those in exclude.
func (m *ConnManager) Broadcast(msg any, exclude map[string]struct{}) {
	m.mu.RLock()
	targets := make([]string, 0, len(m.conns))
	for connID := range m.conns {
		if _, skip := exclude[connID]; skip {
			continue
		}
		targets = append(targets, connID)
	}
	m.mu.RUnlock()

	for _, connID := range targets {
		m.SendToConn(msg, connID)
	}
}

// Snapshot returns the currently registered connection ids. The sweeper
// works off this copy so eviction never holds the registry lock.
func (m *ConnManager) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.conns))
	for connID := range m.conns {
		out = append(out, connID)
	}
	return out
}

// Lookup returns the live connection for connID, if any.
func (m *ConnManager) Lookup(connID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.conns[connID]
	return w, ok
}

// UserConnIDs returns the ids of every connection the user owns.
func (m *ConnManager) UserConnIDs(userID int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byUser[userID]))
	for connID := range m.byUser[userID] {
		out = append(out, connID)
	}
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Close stops the sweeper and closes every live connection. Used on
// graceful shutdown.
func (m *ConnManager) Close() {
	if m.sweepCancel != nil {
		m.sweepCancel()
	}

	m.mu.Lock()
	conns := make([]*WsConn, 0, len(m.conns))
	for _, w := range m.conns {
		conns = append(conns, w)
	}
	m.conns = make(map[string]*WsConn)
	m.byUser = make(map[int64]map[string]*WsConn)
	m.mu.Unlock()

	for _, w := range conns {
		w.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
	}
}
