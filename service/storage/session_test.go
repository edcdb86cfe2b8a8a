package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewMemorySessionStoreWithClock(clock)
	ctx := context.Background()

	rec := &SessionRecord{UserID: 7, ConnectedAt: now, LastHeartbeat: now}
	if err := s.Set(ctx, "ws_7_1", rec, time.Hour); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "ws_7_1")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v; want record", got, err)
	}
	if got.UserID != 7 {
		t.Errorf("user_id = %d, want 7", got.UserID)
	}

	// Get hands back a copy, not the stored value.
	got.UserID = 999
	again, _ := s.Get(ctx, "ws_7_1")
	if again.UserID != 7 {
		t.Errorf("stored record mutated through Get result")
	}

	now = now.Add(time.Hour + time.Second)
	expired, err := s.Get(ctx, "ws_7_1")
	if err != nil || expired != nil {
		t.Errorf("Get after TTL = %v, %v; want nil, nil", expired, err)
	}
	if ok, _ := s.Exists(ctx, "ws_7_1"); ok {
		t.Error("Exists still true after TTL")
	}
}

func TestMemoryStoreTouch(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	s := NewMemorySessionStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := s.Set(ctx, "ws_7_1", &SessionRecord{UserID: 7, ConnectedAt: start, LastHeartbeat: start}, time.Hour); err != nil {
		t.Fatal(err)
	}

	now = start.Add(40 * time.Second)
	if err := s.Touch(ctx, "ws_7_1", 7, now, time.Hour); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Get(ctx, "ws_7_1")
	if !rec.ConnectedAt.Equal(start) {
		t.Errorf("connected_at = %v, want preserved %v", rec.ConnectedAt, start)
	}
	if !rec.LastHeartbeat.Equal(now) {
		t.Errorf("last_heartbeat = %v, want %v", rec.LastHeartbeat, now)
	}

	// A touch on an absent key rewrites a fresh record with the caller's user.
	if err := s.Touch(ctx, "ws_9_2", 9, now, time.Hour); err != nil {
		t.Fatal(err)
	}
	fresh, _ := s.Get(ctx, "ws_9_2")
	if fresh == nil || fresh.UserID != 9 {
		t.Fatalf("fresh record = %v, want user 9", fresh)
	}
	if !fresh.ConnectedAt.Equal(now) || !fresh.LastHeartbeat.Equal(now) {
		t.Errorf("fresh record timestamps = %v/%v, want both %v",
			fresh.ConnectedAt, fresh.LastHeartbeat, now)
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete absent key = %v, want nil", err)
	}
}

// redisTestClient dials a local Redis and skips the test when none answers.
// The suite uses DB 9 and its own key namespace so a developer instance is safe.
func redisTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:6379", DB: 9})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := redisTestClient(t)
	s := NewRedisSessionStore(client)
	ctx := context.Background()
	connID := fmt.Sprintf("test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Delete(ctx, connID) })

	now := time.Now().UTC().Truncate(time.Second)
	rec := &SessionRecord{UserID: 11, ConnectedAt: now, LastHeartbeat: now}
	if err := s.Set(ctx, connID, rec, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, connID)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.UserID != 11 || !got.ConnectedAt.Equal(now) || !got.LastHeartbeat.Equal(now) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	ttl, err := client.TTL(ctx, sessionKey(connID)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within (0, 1m]", ttl)
	}

	if err := s.Delete(ctx, connID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, connID); ok {
		t.Error("Exists true after Delete")
	}
	if gone, err := s.Get(ctx, connID); err != nil || gone != nil {
		t.Errorf("Get after delete = %v, %v; want nil, nil", gone, err)
	}
}

func TestRedisStoreTouchPreservesConnectedAt(t *testing.T) {
	client := redisTestClient(t)
	s := NewRedisSessionStore(client)
	ctx := context.Background()
	connID := fmt.Sprintf("test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Delete(ctx, connID) })

	start := time.Now().UTC().Truncate(time.Second)
	if err := s.Set(ctx, connID, &SessionRecord{UserID: 11, ConnectedAt: start, LastHeartbeat: start}, time.Minute); err != nil {
		t.Fatal(err)
	}

	later := start.Add(30 * time.Second)
	if err := s.Touch(ctx, connID, 11, later, time.Minute); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(ctx, connID)
	if err != nil || rec == nil {
		t.Fatalf("Get after touch = %v, %v", rec, err)
	}
	if !rec.ConnectedAt.Equal(start) {
		t.Errorf("connected_at = %v, want preserved %v", rec.ConnectedAt, start)
	}
	if !rec.LastHeartbeat.Equal(later) {
		t.Errorf("last_heartbeat = %v, want %v", rec.LastHeartbeat, later)
	}
}
