package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrSessionNotFound = errors.New("session not found")

type (
	// SessionRecord is the persisted trace of a sign in.
	SessionRecord struct {
		ID        string     `db:"id"`
		UserID    string     `db:"user_id"`
		CreatedAt time.Time  `db:"created_at"` // UTC
		ExpiresAt time.Time  `db:"expires_at"` // end of the refresh window, UTC
		RevokedAt *time.Time `db:"revoked_at"` // UTC
	}

	SessionRepository interface {
		CreateSession(ctx context.Context, rec SessionRecord) error
		GetSession(ctx context.Context, id string) (SessionRecord, error)
		RevokeSession(ctx context.Context, id string, at time.Time) error
		// RevokeUserSessions revokes the live sessions of a user and returns their IDs.
		RevokeUserSessions(ctx context.Context, userID string, at time.Time) ([]string, error)
	}

	// RevocationBus broadcasts revoked session IDs to every application instance.
	RevocationBus interface {
		Publish(ctx context.Context, sessionID string) error
		// Subscribe registers fn and returns a func that unregisters it.
		Subscribe(fn func(sessionID string)) func()
		Close() error
	}

	// TokenStore persists the access token of an application instance, keyed by client ID.
	TokenStore interface {
		// Load returns "" when no token is stored.
		Load(ctx context.Context, clientID string) (string, error)
		Save(ctx context.Context, clientID, token string, ttl time.Duration) error
		Delete(ctx context.Context, clientID string) error
	}
)

func (r SessionRecord) IsRevoked() bool { return r.RevokedAt != nil }

// Listeners is a set of callbacks safe for concurrent use.
type Listeners[T any] struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(T)
}

func (l *Listeners[T]) Add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every listener with v, outside the lock.
func (l *Listeners[T]) Emit(v T) {
	l.mu.RLock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	l.fns = nil
	l.mu.Unlock()
}

func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}

// MemoryBus is an in-process RevocationBus.
type MemoryBus struct {
	listeners Listeners[string]
}

var _ RevocationBus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus { return new(MemoryBus) }

func (b *MemoryBus) Publish(_ context.Context, sessionID string) error {
	b.listeners.Emit(sessionID)
	return nil
}

func (b *MemoryBus) Subscribe(fn func(string)) func() { return b.listeners.Add(fn) }

func (b *MemoryBus) Close() error { return nil }

// MemoryTokenStore is an in-process TokenStore.
type MemoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]memToken
	nowFunc func() time.Time
}

type memToken struct {
	token     string
	expiresAt time.Time
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]memToken), nowFunc: time.Now}
}

func (s *MemoryTokenStore) Load(_ context.Context, clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[clientID]
	if !ok {
		return "", nil
	}
	if !t.expiresAt.IsZero() && s.nowFunc().After(t.expiresAt) {
		delete(s.tokens, clientID)
		return "", nil
	}
	return t.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, clientID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = s.nowFunc().Add(ttl)
	}
	s.tokens[clientID] = memToken{token: token, expiresAt: exp}
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, clientID)
	return nil
}
