package chat

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"mdzgate/logger"
	"mdzgate/service/storage"
)

// Sweeper is the periodic liveness task: every interval it snapshots the
// registry, consults the session store per connection, and evicts anything
// whose record is missing or whose last heartbeat is older than staleAfter.
// Detect and evict are two phases so the registry and the store may drift
// (a key can expire on its own) without either side crashing; both branches
// converge on the same empty state.
type Sweeper struct {
	mgr        *ConnManager
	store      storage.SessionStore
	interval   time.Duration
	staleAfter time.Duration
	clock      func() time.Time
}

func NewSweeper(mgr *ConnManager, store storage.SessionStore, interval, staleAfter time.Duration, clock func() time.Time) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		mgr:        mgr,
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clock,
	}
}

// Run loops until ctx is cancelled. It is supervised by safe.GoRestart, so
// a panic inside one cycle is logged and the sweeper comes back.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single detect-then-evict cycle.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.clock()

	for _, connID := range s.mgr.Snapshot() {
		rec, err := s.store.Get(ctx, connID)
		if err != nil {
			// A store hiccup is not staleness; try again next cycle.
			logger.Warnf("[sweeper] session get failed conn_id=%s: %v", connID, err)
			continue
		}
		if rec != nil && now.Sub(rec.LastHeartbeat) <= s.staleAfter {
			continue
		}

		logger.Warnf("[sweeper] stale session detected conn_id=%s", connID)

		if w, ok := s.mgr.Lookup(connID); ok {
			// 1006 is reserved and cannot go on the wire; going-away is the
			// closest sendable code for a server-forced eviction.
			w.CloseWithCode(websocket.CloseGoingAway, "stale session")
		}

		if rec != nil {
			s.mgr.Disconnect(ctx, connID, rec.UserID)
		} else {
			// Record already expired on its own; nothing left to delete.
			s.mgr.ForceDrop(connID)
		}
	}
}
