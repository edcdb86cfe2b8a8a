package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mdzgate/service/storage"
)

// fakeTransport records every write so tests can assert on delivery
// attempts without a socket.
type fakeTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	writeCalls int
	failWrites bool
	closed     bool
}

func (f *fakeTransport) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.failWrites {
		return errors.New("write failed")
	}
	if mt == websocket.TextMessage {
		f.frames = append(f.frames, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentFrames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, raw := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

type fixture struct {
	mgr   *ConnManager
	store *storage.MemorySessionStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := storage.NewMemorySessionStoreWithClock(clock)
	mgr := NewConnManager(store, ManagerConf{
		SessionTTL: time.Hour,
		SweepEvery: 30 * time.Second,
		StaleAfter: 90 * time.Second,
		Clock:      clock,
	}, "gw-test")
	return &fixture{mgr: mgr, store: store, now: now}
}

func (fx *fixture) connect(t *testing.T, connID string, userID int64) (*WsConn, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	c := NewWsConn(connID, userID, ft, fx.now)
	if err := fx.mgr.Connect(context.Background(), c); err != nil {
		t.Fatalf("connect %s: %v", connID, err)
	}
	return c, ft
}

func TestConnectRegistersSession(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t, "ws_7_1", 7)

	ids := fx.mgr.UserConnIDs(7)
	if len(ids) != 1 || ids[0] != "ws_7_1" {
		t.Fatalf("user index = %v, want [ws_7_1]", ids)
	}

	rec, err := fx.store.Get(context.Background(), "ws_7_1")
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if rec == nil {
		t.Fatal("session record missing after connect")
	}
	if rec.UserID != 7 {
		t.Errorf("record user_id = %d, want 7", rec.UserID)
	}
	if !rec.LastHeartbeat.Equal(fx.now) {
		t.Errorf("last_heartbeat = %v, want %v", rec.LastHeartbeat, fx.now)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t, "ws_7_1", 7)
	fx.connect(t, "ws_7_2", 7)

	fx.mgr.Disconnect(context.Background(), "ws_7_1", 7)

	if got := fx.mgr.UserConnIDs(7); len(got) != 1 {
		t.Fatalf("after first disconnect user conns = %v, want one", got)
	}
	if ok, _ := fx.store.Exists(context.Background(), "ws_7_1"); ok {
		t.Error("session record survived disconnect")
	}

	// Second call must leave state untouched and not error.
	fx.mgr.Disconnect(context.Background(), "ws_7_1", 7)
	if got := fx.mgr.UserConnIDs(7); len(got) != 1 {
		t.Fatalf("after second disconnect user conns = %v, want one", got)
	}

	// Emptying the last connection drops the user entry entirely.
	fx.mgr.Disconnect(context.Background(), "ws_7_2", 7)
	if got := fx.mgr.UserConnIDs(7); len(got) != 0 {
		t.Fatalf("user conns = %v, want empty", got)
	}
}

func TestSendToConnUnknownIsNoop(t *testing.T) {
	fx := newFixture(t)
	// Must not panic or error out.
	fx.mgr.SendToConn(BuildPong(fx.now), "ws_missing")
}

func TestSendToUserFanout(t *testing.T) {
	fx := newFixture(t)
	_, ft1 := fx.connect(t, "ws_9_1", 9)
	_, ft2 := fx.connect(t, "ws_9_2", 9)
	_, ft3 := fx.connect(t, "ws_9_3", 9)
	ft2.failWrites = true

	fx.mgr.SendToUser(BuildStatus(StatusIdle, ""), 9)

	// Exactly one delivery attempt per connection, independent of the
	// failing one.
	for i, ft := range []*fakeTransport{ft1, ft2, ft3} {
		if ft.attempts() != 1 {
			t.Errorf("conn %d attempts = %d, want 1", i+1, ft.attempts())
		}
	}
	if len(ft1.sentFrames()) != 1 || len(ft3.sentFrames()) != 1 {
		t.Error("healthy connections did not receive the message")
	}
}

func TestBroadcastExcludes(t *testing.T) {
	fx := newFixture(t)
	_, ftA := fx.connect(t, "ws_1_a", 1)
	_, ftB := fx.connect(t, "ws_2_b", 2)
	_, ftC := fx.connect(t, "ws_3_c", 3)

	fx.mgr.Broadcast(BuildStatus(StatusIdle, ""), map[string]struct{}{"ws_1_a": {}})

	if len(ftA.sentFrames()) != 0 {
		t.Error("excluded connection received broadcast")
	}
	if len(ftB.sentFrames()) != 1 || len(ftC.sentFrames()) != 1 {
		t.Error("broadcast missed a live connection")
	}
}

func TestConnectStoreFailureRollsBack(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mgr := NewConnManager(failingStore{}, ManagerConf{Clock: clock}, "gw-test")

	c := NewWsConn("ws_5_1", 5, &fakeTransport{}, now)
	if err := mgr.Connect(context.Background(), c); err == nil {
		t.Fatal("connect succeeded despite store failure")
	}
	if mgr.Count() != 0 {
		t.Error("registry kept an entry whose record was never written")
	}
	if got := mgr.UserConnIDs(5); len(got) != 0 {
		t.Errorf("user index kept %v after rollback", got)
	}
}

func TestConcurrentRegistryTraffic(t *testing.T) {
	fx := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("ws_%d_%d", i, i)
			ft := &fakeTransport{}
			c := NewWsConn(connID, int64(i), ft, fx.now)
			if err := fx.mgr.Connect(context.Background(), c); err != nil {
				t.Errorf("connect: %v", err)
				return
			}
			fx.mgr.SendToUser(BuildPong(fx.now), int64(i))
			fx.mgr.Disconnect(context.Background(), connID, int64(i))
		}(i)
	}
	wg.Wait()

	if fx.mgr.Count() != 0 {
		t.Errorf("registry count = %d after all disconnects, want 0", fx.mgr.Count())
	}
}

// failingStore errors on every write.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*storage.SessionRecord, error) {
	return nil, nil
}
func (failingStore) Set(context.Context, string, *storage.SessionRecord, time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error { return nil }
func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}
func (failingStore) Touch(context.Context, string, int64, time.Time, time.Duration) error {
	return errors.New("store down")
}
