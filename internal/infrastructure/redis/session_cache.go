package redisstore

import (
	"context"
	"encoding/json"
	"errors"

	"cms-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SessionCache persists one client-side session as JSON under Key.
type SessionCache struct {
	Client *redis.Client
	Key    string
}

func NewSessionCache(client *redis.Client, name string) *SessionCache {
	return &SessionCache{Client: client, Key: "cms:session:" + name}
}

func (c *SessionCache) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := c.Client.Get(ctx, c.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *SessionCache) Store(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.Key, raw, 0).Err()
}

func (c *SessionCache) Clear(ctx context.Context) error {
	return c.Client.Del(ctx, c.Key).Err()
}
