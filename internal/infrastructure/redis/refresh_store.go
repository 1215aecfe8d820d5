package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/infrastructure/logx"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	refreshPrefix = "cms:rt:"
	usedPrefix    = "cms:rt:used:"
	userPrefix    = "cms:rt:user:"
)

// RefreshStore keeps refresh tokens in redis. A rotated token is remembered
// until its original expiry; presenting it again revokes every token of its owner.
type RefreshStore struct {
	client *redis.Client
	clock  clockwork.Clock
}

func NewRefreshStore(client *redis.Client, clock clockwork.Clock) *RefreshStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RefreshStore{client: client, clock: clock}
}

func (s *RefreshStore) Save(ctx context.Context, token, username string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired: %w", application.ErrBadRequest)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshPrefix+token, username, ttl)
	pipe.SAdd(ctx, userPrefix+username, token)
	pipe.Expire(ctx, userPrefix+username, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RefreshStore) Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (string, error) {
	username, err := s.client.GetDel(ctx, refreshPrefix+oldToken).Result()
	if errors.Is(err, redis.Nil) {
		return "", s.replay(ctx, oldToken)
	}
	if err != nil {
		return "", err
	}

	// remember the rotated token for as long as it would have lived
	ttl := expiresAt.Sub(s.clock.Now())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, usedPrefix+oldToken, username, ttl)
	pipe.SRem(ctx, userPrefix+username, oldToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	if err := s.Save(ctx, newToken, username, expiresAt); err != nil {
		return "", err
	}
	return username, nil
}

func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	username, err := s.client.GetDel(ctx, refreshPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.SRem(ctx, userPrefix+username, token).Err()
}

func (s *RefreshStore) RevokeAll(ctx context.Context, username string) error {
	tokens, err := s.client.SMembers(ctx, userPrefix+username).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, refreshPrefix+t)
	}
	keys = append(keys, userPrefix+username)
	return s.client.Del(ctx, keys...).Err()
}

func (s *RefreshStore) replay(ctx context.Context, token string) error {
	username, err := s.client.Get(ctx, usedPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("unknown refresh token: %w", application.ErrUnauthorized)
	}
	if err != nil {
		return err
	}
	logx.L().Warn("refresh_token.replay_detected", zap.String("username", username))
	if err := s.RevokeAll(ctx, username); err != nil {
		return err
	}
	return fmt.Errorf("refresh token reused: %w", application.ErrUnauthorized)
}
