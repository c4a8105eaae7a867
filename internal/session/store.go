// Package session persists per-user wizard sessions behind a small
// key-value interface so handlers do not care whether state lives in
// redis or in process memory.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semegn89/ozon/internal/wizard"
)

// Store holds at most one session per user id.
type Store interface {
	// Get returns the session or nil when the user has none.
	Get(ctx context.Context, userID int64) (*wizard.Session, error)
	// Set overwrites any existing session unconditionally.
	Set(ctx context.Context, userID int64, s *wizard.Session) error
	// Clear removes the session; clearing an absent one is a no-op.
	Clear(ctx context.Context, userID int64) error
}

type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a redis-backed store. A ttl of 0 keeps sessions
// until they are explicitly cleared.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: rdb, ttl: ttl}
}

func (r *RedisStore) key(userID int64) string {
	return fmt.Sprintf("gakshop:session:%d", userID)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (*wizard.Session, error) {
	raw, err := r.redis.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s wizard.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, s *wizard.Session) error {
	s.UserID = userID
	s.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.redis.Set(ctx, r.key(userID), string(b), r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.redis.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// MemoryStore is a mutex-guarded map. Used in tests and in single
// process deployments that run without redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]wizard.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]wizard.Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (*wizard.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	// Copy out so callers cannot mutate the stored value in place.
	cp := s
	cp.Fields.ModelIDs = append([]int64(nil), s.Fields.ModelIDs...)
	return &cp, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, s *wizard.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UserID = userID
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	cp.Fields.ModelIDs = append([]int64(nil), s.Fields.ModelIDs...)
	m.sessions[userID] = cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
