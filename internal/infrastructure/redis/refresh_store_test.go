package redisstore_test

import (
	"context"
	"testing"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/domain"
	redisstore "cms-service/internal/infrastructure/redis"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRefreshStore_Rotate(t *testing.T) {
	_, client := newRedis(t)
	clock := clockwork.NewFakeClock()
	store := redisstore.NewRefreshStore(client, clock)
	ctx := context.Background()
	exp := clock.Now().Add(time.Hour)

	require.NoError(t, store.Save(ctx, "r1", "ana", exp))
	u, err := store.Rotate(ctx, "r1", "r2", exp)
	require.NoError(t, err)
	require.Equal(t, "ana", u)

	u, err = store.Rotate(ctx, "r2", "r3", exp)
	require.NoError(t, err)
	require.Equal(t, "ana", u)
}

func TestRefreshStore_ReplayRevokesAll(t *testing.T) {
	_, client := newRedis(t)
	clock := clockwork.NewFakeClock()
	store := redisstore.NewRefreshStore(client, clock)
	ctx := context.Background()
	exp := clock.Now().Add(time.Hour)

	require.NoError(t, store.Save(ctx, "r1", "ana", exp))
	require.NoError(t, store.Save(ctx, "other-device", "ana", exp))
	_, err := store.Rotate(ctx, "r1", "r2", exp)
	require.NoError(t, err)

	_, err = store.Rotate(ctx, "r1", "r9", exp)
	require.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = store.Rotate(ctx, "r2", "r3", exp)
	require.ErrorIs(t, err, application.ErrUnauthorized)
	_, err = store.Rotate(ctx, "other-device", "r4", exp)
	require.ErrorIs(t, err, application.ErrUnauthorized)
}

func TestRefreshStore_UnknownAndExpired(t *testing.T) {
	mr, client := newRedis(t)
	clock := clockwork.NewFakeClock()
	store := redisstore.NewRefreshStore(client, clock)
	ctx := context.Background()

	_, err := store.Rotate(ctx, "nope", "x", clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, application.ErrUnauthorized)

	require.ErrorIs(t, store.Save(ctx, "late", "ana", clock.Now().Add(-time.Second)), application.ErrBadRequest)

	require.NoError(t, store.Save(ctx, "short", "ana", clock.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)
	_, err = store.Rotate(ctx, "short", "x", clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, application.ErrUnauthorized)
}

func TestRefreshStore_Revoke(t *testing.T) {
	_, client := newRedis(t)
	clock := clockwork.NewFakeClock()
	store := redisstore.NewRefreshStore(client, clock)
	ctx := context.Background()
	exp := clock.Now().Add(time.Hour)

	require.NoError(t, store.Save(ctx, "r1", "ana", exp))
	require.NoError(t, store.Revoke(ctx, "r1"))
	require.NoError(t, store.Revoke(ctx, "r1"))
	_, err := store.Rotate(ctx, "r1", "r2", exp)
	require.ErrorIs(t, err, application.ErrUnauthorized)
}

func TestSessionCache(t *testing.T) {
	_, client := newRedis(t)
	cache := redisstore.NewSessionCache(client, "cli")
	ctx := context.Background()

	s, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	want := &domain.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Username: "ana"}
	require.NoError(t, cache.Store(ctx, want))
	got, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, cache.Clear(ctx))
	s, err = cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, s)
}
