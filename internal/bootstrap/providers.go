package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cms-service/internal/application"
	"cms-service/internal/config"
	"cms-service/internal/infrastructure/apiclient"
	"cms-service/internal/infrastructure/authclient"
	"cms-service/internal/infrastructure/dispatcher"
	httpserver "cms-service/internal/infrastructure/http"
	"cms-service/internal/infrastructure/logx"
	"cms-service/internal/infrastructure/pg"
	redisstore "cms-service/internal/infrastructure/redis"
	"cms-service/internal/infrastructure/storage"
	"cms-service/internal/infrastructure/token"
	"cms-service/internal/infrastructure/worker"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	ErrMissingDBURL       = errors.New("DATABASE_URL is required")
	ErrMissingTokenSecret = errors.New("TOKEN_SIGNING_SECRET is required")
)

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideDB(ctx context.Context, log *zap.Logger, cfg config.Config) (*pg.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, ErrMissingDBURL
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return db, cleanup, nil
}

func ProvideRedisClient(cfg config.Config) (*redis.Client, func()) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func ProvideIdempotency(client *redis.Client, cfg config.Config) application.IdempotencyStore {
	if cfg.IdempotencyBackend != "redis" || client == nil {
		return application.NoopIdempotency{}
	}
	return redisstore.New(client, cfg.IdempotencyTTL)
}

func ProvideObjectStorage(ctx context.Context, cfg config.Config) (application.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		s3, err := storage.NewS3(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return s3, nil
	case "memory":
		return storage.NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func ProvideTokenIssuer(cfg config.Config) (*token.JWT, error) {
	if cfg.TokenSecret == "" {
		return nil, ErrMissingTokenSecret
	}
	return token.NewJWT(cfg.TokenSecret, cfg.AccessTokenTTL, nil)
}

func buckets(cfg config.Config) application.Buckets {
	return application.Buckets{Gallery: cfg.GalleryBucket, Documents: cfg.DocumentsBucket}
}

// API is the HTTP server together with what main needs to run and stop it.
type API struct {
	Server  *httpserver.Server
	Handler http.Handler
	Media   *application.MediaService
	Cleanup func()
}

// BuildAPI wires the API on Postgres, Redis and object storage. Without
// DATABASE_URL every backend runs in process.
func BuildAPI(ctx context.Context, cfg config.Config, log *zap.Logger) (*API, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; running with in-memory backends")
		return buildInMemoryAPI(cfg, log)
	}

	issuer, err := ProvideTokenIssuer(cfg)
	if err != nil {
		return nil, err
	}
	objects, err := ProvideObjectStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db, closeDB, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	rdb, closeRedis := ProvideRedisClient(cfg)
	cleanup := func() {
		closeRedis()
		closeDB()
	}

	images, documents, links := pg.NewImageRepo(db), pg.NewDocumentRepo(db), pg.NewLinkRepo(db)
	profiles := pg.NewProfileRepo(db)
	refresh := redisstore.NewRefreshStore(rdb, clockwork.NewRealClock())

	svc := httpserver.Services{
		Posts: application.NewPostService(pg.NewPostRepo(db), links, ProvideIdempotency(rdb, cfg),
			application.WithUnitOfWork(pg.NewUnitOfWork(db)), application.WithPostLogger(log)),
		Media: application.NewMediaService(images, documents, links, objects, buckets(cfg), cfg.SignedURLTTL,
			application.WithMediaLogger(log)),
		Auth:     application.NewAuthService(profiles, refresh, issuer, cfg.RefreshTokenTTL, application.WithAuthLogger(log)),
		Profiles: application.NewProfileService(profiles, refresh, application.WithProfileLogger(log)),
	}
	srv := httpserver.NewServer(svc, httpserver.WithCORSOrigins(cfg.CORSOrigins))
	srv.SetReadyCheck(func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	return &API{Server: srv, Handler: httpserver.NewRouter(srv), Media: svc.Media, Cleanup: cleanup}, nil
}

func buildInMemoryAPI(cfg config.Config, log *zap.Logger) (*API, error) {
	mem, err := httpserver.NewInMemory(httpserver.InMemoryConfig{
		Logger:       log,
		TokenSecret:  cfg.TokenSecret,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		SignedURLTTL: cfg.SignedURLTTL,
		Buckets:      buckets(cfg),
	})
	if err != nil {
		return nil, err
	}
	srv := httpserver.NewServer(mem.Services, httpserver.WithCORSOrigins(cfg.CORSOrigins))
	return &API{Server: srv, Handler: httpserver.NewRouter(srv), Media: mem.Media, Cleanup: func() {}}, nil
}

// BuildWorker wires the signed-URL refresher on Postgres and object storage.
func BuildWorker(ctx context.Context, cfg config.Config, log *zap.Logger) (application.Worker, func(), error) {
	objects, err := ProvideObjectStorage(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	db, cleanup, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	media := application.NewMediaService(pg.NewImageRepo(db), pg.NewDocumentRepo(db), pg.NewLinkRepo(db), objects,
		buckets(cfg), cfg.SignedURLTTL, application.WithMediaLogger(log))
	return ProvideWorker(media, log, cfg), cleanup, nil
}

func ProvideWorker(media worker.Resigner, log *zap.Logger, cfg config.Config) *worker.URLRefresher {
	return worker.NewURLRefresher(media, cfg.WorkerPoll, cfg.URLRefreshWindow, cfg.WorkerBatchSize, log)
}

// Client is the typed API client plus the session manager behind it.
type Client struct {
	API  *apiclient.Client
	Auth *authclient.Client
}

// ProvideSessionCache picks where the client keeps its session between runs.
func ProvideSessionCache(cfg config.Config, name string) (authclient.SessionCache, func()) {
	if cfg.SessionBackend != "redis" {
		return &authclient.MemoryCache{}, func() {}
	}
	rdb, closeRedis := ProvideRedisClient(cfg)
	return redisstore.NewSessionCache(rdb, name), closeRedis
}

// BuildClient wires the dispatcher with token refresh against cfg.APIBaseURL.
func BuildClient(cfg config.Config, log *zap.Logger, cache authclient.SessionCache, reg prometheus.Registerer) (*Client, error) {
	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	auth := authclient.New(cfg.APIBaseURL, cache, authclient.WithHTTPClient(httpClient), authclient.WithLogger(log))
	refresher := dispatcher.NewTokenRefresher(auth,
		dispatcher.WithThreshold(cfg.RefreshThreshold),
		dispatcher.WithRefresherLogger(log))

	opts := []dispatcher.Option{
		dispatcher.WithHTTPClient(httpClient),
		dispatcher.WithTokenSource(refresher),
		dispatcher.WithLogger(log),
	}
	if reg != nil {
		opts = append(opts, dispatcher.WithMetrics(reg))
	}
	d, err := dispatcher.New(cfg.APIBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{API: apiclient.New(d), Auth: auth}, nil
}
