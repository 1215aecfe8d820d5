package application

import (
	"context"
	"fmt"
	"strings"

	"cms-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type ProfileService struct {
	profiles   ProfileRepo
	refresh    RefreshTokenStore
	bcryptCost int
	log        *zap.Logger
}

type ProfileOption func(*ProfileService)

func WithProfileLogger(l *zap.Logger) ProfileOption { return func(s *ProfileService) { s.log = l } }
func WithProfileBcryptCost(cost int) ProfileOption {
	return func(s *ProfileService) { s.bcryptCost = cost }
}

func NewProfileService(profiles ProfileRepo, refresh RefreshTokenStore, opts ...ProfileOption) *ProfileService {
	s := &ProfileService{profiles: profiles, refresh: refresh, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *ProfileService) Get(ctx context.Context, username string) (domain.Profile, error) {
	return s.profiles.GetByUsername(ctx, username)
}

func (s *ProfileService) List(ctx context.Context) ([]domain.Profile, error) {
	return s.profiles.List(ctx)
}

func (s *ProfileService) Search(ctx context.Context, query string) ([]domain.Profile, error) {
	return s.profiles.Search(ctx, strings.TrimSpace(query))
}

func (s *ProfileService) Update(ctx context.Context, username string, patch domain.ProfilePatch) (domain.Profile, error) {
	if patch.Email == nil && patch.Password == nil {
		return domain.Profile{}, fmt.Errorf("nothing to update: %w", ErrBadRequest)
	}
	var hash *string
	if patch.Password != nil {
		if *patch.Password == "" {
			return domain.Profile{}, fmt.Errorf("empty password: %w", ErrBadRequest)
		}
		h, err := hashPassword(*patch.Password, s.bcryptCost)
		if err != nil {
			return domain.Profile{}, err
		}
		hash = &h
	}
	p, err := s.profiles.Update(ctx, username, patch.Email, hash)
	if err != nil {
		return domain.Profile{}, err
	}
	if hash != nil {
		// a new password invalidates every outstanding refresh token
		if err := s.refresh.RevokeAll(ctx, username); err != nil {
			s.log.Warn("profile.revoke_failed", zap.String("username", username), zap.Error(err))
		}
	}
	return p, nil
}

func (s *ProfileService) Delete(ctx context.Context, username string) error {
	if err := s.profiles.Delete(ctx, username); err != nil {
		return err
	}
	if err := s.refresh.RevokeAll(ctx, username); err != nil {
		s.log.Warn("profile.revoke_failed", zap.String("username", username), zap.Error(err))
	}
	s.log.Info("profile.deleted", zap.String("username", username))
	return nil
}
