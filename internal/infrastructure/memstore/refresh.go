package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cms-service/internal/application"

	"github.com/jonboulle/clockwork"
)

type refreshEntry struct {
	username  string
	expiresAt time.Time
}

// RefreshStore mirrors the redis refresh-token store in process, replay
// detection included.
type RefreshStore struct {
	mu    sync.Mutex
	clock clockwork.Clock
	live  map[string]refreshEntry
	used  map[string]refreshEntry
}

var _ application.RefreshTokenStore = (*RefreshStore)(nil)

func NewRefreshStore(clock clockwork.Clock) *RefreshStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RefreshStore{clock: clock, live: map[string]refreshEntry{}, used: map[string]refreshEntry{}}
}

func (s *RefreshStore) Save(_ context.Context, token, username string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !expiresAt.After(s.clock.Now()) {
		return fmt.Errorf("refresh token already expired: %w", application.ErrBadRequest)
	}
	s.live[token] = refreshEntry{username: username, expiresAt: expiresAt}
	return nil
}

func (s *RefreshStore) Rotate(_ context.Context, oldToken, newToken string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	e, ok := s.live[oldToken]
	if !ok || !e.expiresAt.After(now) {
		delete(s.live, oldToken)
		if u, replayed := s.used[oldToken]; replayed && u.expiresAt.After(now) {
			s.revokeAll(u.username)
			return "", fmt.Errorf("refresh token reused: %w", application.ErrUnauthorized)
		}
		return "", fmt.Errorf("unknown refresh token: %w", application.ErrUnauthorized)
	}
	delete(s.live, oldToken)
	s.used[oldToken] = refreshEntry{username: e.username, expiresAt: expiresAt}
	s.live[newToken] = refreshEntry{username: e.username, expiresAt: expiresAt}
	return e.username, nil
}

func (s *RefreshStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.live, token)
	s.mu.Unlock()
	return nil
}

func (s *RefreshStore) RevokeAll(_ context.Context, username string) error {
	s.mu.Lock()
	s.revokeAll(username)
	s.mu.Unlock()
	return nil
}

func (s *RefreshStore) revokeAll(username string) {
	for t, e := range s.live {
		if e.username == username {
			delete(s.live, t)
		}
	}
}
