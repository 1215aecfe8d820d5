// Package authclient owns the client-side session: it logs in against the CMS
// API, persists the session and refreshes it on demand.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"cms-service/internal/api"
	"cms-service/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// ErrNoSession is returned by operations that need a stored session.
var ErrNoSession = errors.New("no session")

// SessionCache persists the current session. Load returns nil when there is none.
type SessionCache interface {
	Load(ctx context.Context) (*domain.Session, error)
	Store(ctx context.Context, s *domain.Session) error
	Clear(ctx context.Context) error
}

// MemoryCache keeps the session in process.
type MemoryCache struct {
	mu sync.Mutex
	s  *domain.Session
}

func (c *MemoryCache) Load(context.Context) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s == nil {
		return nil, nil
	}
	s := *c.s
	return &s, nil
}

func (c *MemoryCache) Store(_ context.Context, s *domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.s = &cp
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	c.s = nil
	c.mu.Unlock()
	return nil
}

// StatusError is a non-2xx answer of the auth endpoints.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth: status %d", e.Code)
	}
	return fmt.Sprintf("auth: status %d: %s", e.Code, e.Message)
}

// Client talks to the auth endpoints directly over HTTP. It does not go
// through the dispatcher so a refresh can never be superseded by itself.
type Client struct {
	baseURL string
	http    *http.Client
	cache   SessionCache
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }
func WithLogger(l *zap.Logger) Option      { return func(cl *Client) { cl.log = l } }

func New(baseURL string, cache SessionCache, opts ...Option) *Client {
	if cache == nil {
		cache = &MemoryCache{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cache:   cache,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	var s domain.Session
	if err := c.post(ctx, "/auth/login", api.Credentials{Username: username, Password: password}, &s); err != nil {
		return nil, err
	}
	if err := c.cache.Store(ctx, &s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	c.log.Info("auth.logged_in", zap.String("username", s.Username))
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	return c.cache.Load(ctx)
}

// RefreshSession exchanges the stored refresh token for a new session. A
// rejected refresh clears the stored session.
func (c *Client) RefreshSession(ctx context.Context) (*domain.Session, error) {
	cur, err := c.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.RefreshToken == "" {
		return nil, nil
	}
	var s domain.Session
	if err := c.post(ctx, "/auth/refresh", api.RefreshRequest{RefreshToken: cur.RefreshToken}, &s); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			if cerr := c.cache.Clear(ctx); cerr != nil {
				c.log.Warn("auth.clear_session_failed", zap.Error(cerr))
			}
		}
		return nil, err
	}
	if err := c.cache.Store(ctx, &s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &s, nil
}

// Logout revokes the refresh token server side and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	cur, err := c.cache.Load(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	postErr := c.post(ctx, "/auth/logout", api.RefreshRequest{RefreshToken: cur.RefreshToken}, nil)
	if err := c.cache.Clear(ctx); err != nil {
		return err
	}
	return postErr
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e api.Error
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(raw, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
