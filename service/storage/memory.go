package storage

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore is an in-process SessionStore with real per-key expiry.
// It backs tests and store-less development runs; expiry is evaluated lazily
// on access against the injected clock.
type MemorySessionStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	clock func() time.Time
}

type memoryItem struct {
	rec      SessionRecord
	expireAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return NewMemorySessionStoreWithClock(time.Now)
}

func NewMemorySessionStoreWithClock(clock func() time.Time) *MemorySessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySessionStore{
		items: make(map[string]memoryItem),
		clock: clock,
	}
}

func (s *MemorySessionStore) Get(_ context.Context, connID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[connID]
	if !ok {
		return nil, nil
	}
	if s.clock().After(it.expireAt) {
		delete(s.items, connID)
		return nil, nil
	}
	rec := it.rec
	return &rec, nil
}

func (s *MemorySessionStore) Set(_ context.Context, connID string, rec *SessionRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[connID] = memoryItem{rec: *rec, expireAt: s.clock().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, connID)
	return nil
}

func (s *MemorySessionStore) Exists(ctx context.Context, connID string) (bool, error) {
	rec, err := s.Get(ctx, connID)
	return rec != nil, err
}

func (s *MemorySessionStore) Touch(ctx context.Context, connID string, userID int64, now time.Time, ttl time.Duration) error {
	rec, err := s.Get(ctx, connID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &SessionRecord{UserID: userID, ConnectedAt: now}
	}
	rec.LastHeartbeat = now
	return s.Set(ctx, connID, rec, ttl)
}
