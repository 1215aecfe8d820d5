package dispatcher

import (
	"context"
	"sync"
	"time"

	"cms-service/internal/domain"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshThreshold is the remaining lifetime under which a session is refreshed.
const DefaultRefreshThreshold = 300 * time.Second

// refreshTimeout bounds a refresh once it no longer follows any caller's context.
const refreshTimeout = 30 * time.Second

// SessionProvider is the auth collaborator that owns the session.
// Both methods return a nil session when there is none.
type SessionProvider interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	RefreshSession(ctx context.Context) (*domain.Session, error)
}

// TokenSource resolves the bearer token for an outbound request.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// TokenRefresher resolves tokens from a SessionProvider and refreshes sessions
// that are about to expire.
type TokenRefresher struct {
	auth      SessionProvider
	clock     clockwork.Clock
	threshold time.Duration
	log       *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	state domain.SessionState
}

type RefresherOption func(*TokenRefresher)

func WithClock(c clockwork.Clock) RefresherOption {
	return func(r *TokenRefresher) { r.clock = c }
}

func WithThreshold(d time.Duration) RefresherOption {
	return func(r *TokenRefresher) {
		if d > 0 {
			r.threshold = d
		}
	}
}

func WithRefresherLogger(l *zap.Logger) RefresherOption {
	return func(r *TokenRefresher) {
		if l != nil {
			r.log = l
		}
	}
}

func NewTokenRefresher(auth SessionProvider, opts ...RefresherOption) *TokenRefresher {
	r := &TokenRefresher{
		auth:      auth,
		clock:     clockwork.NewRealClock(),
		threshold: DefaultRefreshThreshold,
		log:       zap.NewNop(),
		state:     domain.SessionStateNone,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports where the session currently is in its lifecycle.
func (r *TokenRefresher) State() domain.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *TokenRefresher) setState(s domain.SessionState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *TokenRefresher) AccessToken(ctx context.Context) string {
	sess, err := r.auth.GetSession(ctx)
	if err != nil {
		r.log.Warn("token.get_session_failed", zap.Error(err))
		r.setState(domain.SessionStateNone)
		return ""
	}
	if sess == nil {
		r.setState(domain.SessionStateNone)
		return ""
	}

	remaining := sess.ExpiresIn(r.clock.Now())
	if remaining >= r.threshold {
		r.setState(domain.SessionStateValid)
		return sess.AccessToken
	}

	r.log.Info("token.refresh_start", zap.Duration("remaining", remaining))
	// The refresh rotates the server-side token and outlives the caller that started it.
	ch := r.group.DoChan("refresh", func() (any, error) {
		r.setState(domain.SessionStateRefreshing)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		refreshed, err := r.auth.RefreshSession(rctx)
		if err != nil || refreshed == nil {
			r.setState(domain.SessionStateNone)
		} else {
			r.setState(domain.SessionStateValid)
		}
		return refreshed, err
	})

	select {
	case <-ctx.Done():
		return ""
	case res := <-ch:
		refreshed, _ := res.Val.(*domain.Session)
		if res.Err != nil || refreshed == nil {
			r.log.Warn("token.auth_expired", zap.Bool("shared", res.Shared), zap.Error(res.Err))
			return ""
		}
		return refreshed.AccessToken
	}
}

// StaticToken is a TokenSource for a fixed credential.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) string { return string(t) }
