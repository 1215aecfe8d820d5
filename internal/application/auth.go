package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cms-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	profiles   ProfileRepo
	refresh    RefreshTokenStore
	issuer     TokenIssuer
	refreshTTL time.Duration
	bcryptCost int
	clock      clockwork.Clock
	log        *zap.Logger
}

type AuthOption func(*AuthService)

func WithAuthClock(c clockwork.Clock) AuthOption { return func(s *AuthService) { s.clock = c } }
func WithAuthLogger(l *zap.Logger) AuthOption    { return func(s *AuthService) { s.log = l } }
func WithBcryptCost(cost int) AuthOption         { return func(s *AuthService) { s.bcryptCost = cost } }

func NewAuthService(profiles ProfileRepo, refresh RefreshTokenStore, issuer TokenIssuer, refreshTTL time.Duration, opts ...AuthOption) *AuthService {
	s := &AuthService{
		profiles:   profiles,
		refresh:    refresh,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (domain.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.Profile{}, fmt.Errorf("username and password are required: %w", ErrBadRequest)
	}
	if _, err := s.profiles.GetByUsername(ctx, username); err == nil {
		return domain.Profile{}, fmt.Errorf("username %q already exists: %w", username, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return domain.Profile{}, err
	}

	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return domain.Profile{}, err
	}
	p, err := s.profiles.Create(ctx, domain.Profile{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
	})
	if err != nil {
		return domain.Profile{}, err
	}
	s.log.Info("auth.registered", zap.String("username", username))
	return p, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	p, err := s.profiles.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		s.log.Info("auth.login_rejected", zap.String("username", p.Username))
		return domain.Session{}, ErrInvalidCredentials
	}

	refreshToken := uuid.NewString()
	if err := s.refresh.Save(ctx, refreshToken, p.Username, s.clock.Now().Add(s.refreshTTL)); err != nil {
		return domain.Session{}, fmt.Errorf("save refresh token: %w", err)
	}
	return s.session(p.Username, refreshToken)
}

// Refresh rotates refreshToken and issues a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	if refreshToken == "" {
		return domain.Session{}, ErrUnauthorized
	}
	next := uuid.NewString()
	username, err := s.refresh.Rotate(ctx, refreshToken, next, s.clock.Now().Add(s.refreshTTL))
	if err != nil {
		s.log.Warn("auth.refresh_rejected", zap.Error(err))
		return domain.Session{}, err
	}
	return s.session(username, next)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.Revoke(ctx, refreshToken)
}

// Authenticate returns the username an access token was issued to.
func (s *AuthService) Authenticate(_ context.Context, accessToken string) (string, error) {
	username, err := s.issuer.Verify(accessToken)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	return username, nil
}

func (s *AuthService) session(username, refreshToken string) (domain.Session, error) {
	access, expiresAt, err := s.issuer.Issue(username)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issue access token: %w", err)
	}
	return domain.Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		Username:     username,
	}, nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
