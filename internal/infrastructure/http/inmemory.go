package httpserver

import (
	"time"

	"cms-service/internal/application"
	"cms-service/internal/infrastructure/config"
	"cms-service/internal/infrastructure/memstore"
	"cms-service/internal/infrastructure/storage"
	"cms-service/internal/infrastructure/token"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// InMemory is a fully wired service set without Postgres, Redis or S3.
type InMemory struct {
	Services
	Store   *memstore.Store
	Objects *storage.Memory
	Tokens  *memstore.RefreshStore
}

type InMemoryConfig struct {
	Clock         clockwork.Clock
	Logger        *zap.Logger
	TokenSecret   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SignedURLTTL  time.Duration
	BcryptCost    int
	Buckets       application.Buckets
	Idempotency   application.IdempotencyStore
	RefreshStore  application.RefreshTokenStore
	ObjectStorage application.ObjectStorage
}

const devSigningSecret = "cms-in-memory-signing-secret"

// NewInMemory wires the application services onto memstore. Zero fields in
// cfg fall back to development defaults.
func NewInMemory(cfg InMemoryConfig) (*InMemory, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = devSigningSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = config.DefaultSignedURLTTL
	}
	if cfg.Buckets.Gallery == "" {
		cfg.Buckets = application.Buckets{Gallery: "gallery", Documents: "pdfs"}
	}
	if cfg.Idempotency == nil {
		cfg.Idempotency = application.NoopIdempotency{}
	}

	issuer, err := token.NewJWT(cfg.TokenSecret, cfg.AccessTTL, cfg.Clock)
	if err != nil {
		return nil, err
	}
	store := memstore.New(cfg.Clock)
	objects := storage.NewMemory(cfg.Clock)
	tokens := memstore.NewRefreshStore(cfg.Clock)

	refresh := cfg.RefreshStore
	if refresh == nil {
		refresh = tokens
	}
	var objStore application.ObjectStorage = objects
	if cfg.ObjectStorage != nil {
		objStore = cfg.ObjectStorage
	}

	authOpts := []application.AuthOption{application.WithAuthClock(cfg.Clock), application.WithAuthLogger(cfg.Logger)}
	profileOpts := []application.ProfileOption{application.WithProfileLogger(cfg.Logger)}
	if cfg.BcryptCost > 0 {
		authOpts = append(authOpts, application.WithBcryptCost(cfg.BcryptCost))
		profileOpts = append(profileOpts, application.WithProfileBcryptCost(cfg.BcryptCost))
	}

	return &InMemory{
		Services: Services{
			Posts: application.NewPostService(store.Posts(), store.Links(), cfg.Idempotency,
				application.WithPostLogger(cfg.Logger)),
			Media: application.NewMediaService(store.Images(), store.Documents(), store.Links(), objStore, cfg.Buckets, cfg.SignedURLTTL,
				application.WithMediaClock(cfg.Clock), application.WithMediaLogger(cfg.Logger)),
			Auth:     application.NewAuthService(store.Profiles(), refresh, issuer, cfg.RefreshTTL, authOpts...),
			Profiles: application.NewProfileService(store.Profiles(), refresh, profileOpts...),
		},
		Store:   store,
		Objects: objects,
		Tokens:  tokens,
	}, nil
}
