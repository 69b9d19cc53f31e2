package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turbekoff/tapecalc/pkg/calc"
)

var ErrSessionExpired = errors.New("session has expired")

// Session is one user's calculator: the engine plus the chat message that
// carries its keyboard. The update loop and the cache cleaner both reach
// the engine, so every use goes through Use or Snapshot.
type Session struct {
	ID        string
	Owner     string
	MessageID int
	Engine    *calc.Engine

	mu sync.Mutex
}

func sessionKey(chatID, userID int64) string {
	return fmt.Sprintf("%d_%d", chatID, userID)
}

func NewSession(owner string, cfg EngineConfig, opts ...calc.Option) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Owner:  owner,
		Engine: calc.New(append(cfg.Options(), opts...)...),
	}
}

// Use runs fn with exclusive access to the engine.
func (s *Session) Use(fn func(e *calc.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.Engine)
}

// Snapshot copies the engine state under the session lock.
func (s *Session) Snapshot() calc.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Engine.Snapshot()
}

// sessionRecord is the stored form of a session. Only the snapshot is
// kept; the engine is rebuilt by replaying it.
type sessionRecord struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	MessageID int           `json:"message_id"`
	Snapshot  calc.Snapshot `json:"snapshot"`
	SavedAt   time.Time     `json:"saved_at"`
}

func (s *Session) record() sessionRecord {
	return sessionRecord{
		ID:        s.ID,
		Owner:     s.Owner,
		MessageID: s.MessageID,
		Snapshot:  s.Snapshot(),
		SavedAt:   time.Now().UTC(),
	}
}

func restoreSession(rec sessionRecord, opts ...calc.Option) (*Session, error) {
	engine := calc.New(opts...)
	if err := engine.Restore(rec.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", rec.ID, err)
	}
	return &Session{
		ID:        rec.ID,
		Owner:     rec.Owner,
		MessageID: rec.MessageID,
		Engine:    engine,
	}, nil
}

// SessionStore keeps sessions between bot updates.
type SessionStore interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	// IsEmpty reports whether no session still needs the process alive.
	IsEmpty() bool
	Shutdown(ctx context.Context) error
	Close() error
}

// MemorySessionStore keeps live engines in a Memcached. Sessions are lost
// when the process exits, so shutdown waits for them to expire.
type MemorySessionStore struct {
	mc *Memcached[*Session]
}

func NewMemorySessionStore(ttlTimeout, cleanupTimeout time.Duration) *MemorySessionStore {
	return &MemorySessionStore{mc: NewMemcached[*Session](ttlTimeout, cleanupTimeout)}
}

// OnExpire registers fn to receive sessions that timed out.
func (s *MemorySessionStore) OnExpire(fn func(*Session)) {
	s.mc.OnExpire(func(_ string, session *Session) { fn(session) })
}

func (s *MemorySessionStore) Load(_ context.Context, key string) (*Session, error) {
	session, ok := s.mc.Get(key)
	if !ok {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *MemorySessionStore) Save(_ context.Context, key string, session *Session) error {
	s.mc.Set(key, session)
	return nil
}

func (s *MemorySessionStore) IsEmpty() bool {
	return s.mc.IsEmpty()
}

func (s *MemorySessionStore) Len() int {
	return s.mc.Len()
}

func (s *MemorySessionStore) Shutdown(ctx context.Context) error {
	return s.mc.Shutdown(ctx)
}

func (s *MemorySessionStore) Close() error {
	return s.mc.Close()
}
