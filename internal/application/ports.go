package application

import (
	"context"
	"io"
	"time"

	"cms-service/internal/domain"
)

type PostRepo interface {
	List(ctx context.Context) ([]domain.PostWithContent, error)
	Search(ctx context.Context, query string) ([]domain.Post, error)
	// Get returns the post with every linked image, the main image included.
	Get(ctx context.Context, id string) (domain.PostWithContent, error)
	Create(ctx context.Context, p domain.NewPost) (domain.Post, error)
	Update(ctx context.Context, id string, p domain.NewPost) (domain.Post, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// LinkRepo maintains the post<->image and post<->document junctions.
type LinkRepo interface {
	LinkImage(ctx context.Context, postID, imageID string) error
	UnlinkImage(ctx context.Context, postID, imageID string) error
	LinkDocument(ctx context.Context, postID, documentID string) error
	UnlinkDocument(ctx context.Context, postID, documentID string) error
	ClearLinks(ctx context.Context, postID string) error
}

type ImageRepo interface {
	List(ctx context.Context) ([]domain.Image, error)
	Get(ctx context.Context, id string) (domain.Image, error)
	Create(ctx context.Context, img domain.Image) (domain.Image, error)
	Update(ctx context.Context, id string, patch domain.MediaPatch) (domain.Image, error)
	Delete(ctx context.Context, id string) error
	ExpiringBefore(ctx context.Context, t time.Time, limit int) ([]domain.SignedObject, error)
	UpdateURL(ctx context.Context, id, url string, expiresAt time.Time) error
}

type DocumentRepo interface {
	List(ctx context.Context) ([]domain.Document, error)
	Get(ctx context.Context, id string) (domain.Document, error)
	Create(ctx context.Context, doc domain.Document) (domain.Document, error)
	Update(ctx context.Context, id string, patch domain.MediaPatch) (domain.Document, error)
	Delete(ctx context.Context, id string) error
	ExpiringBefore(ctx context.Context, t time.Time, limit int) ([]domain.SignedObject, error)
	UpdateURL(ctx context.Context, id, url string, expiresAt time.Time) error
}

type ProfileRepo interface {
	Create(ctx context.Context, p domain.Profile) (domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (domain.Profile, error)
	List(ctx context.Context) ([]domain.Profile, error)
	Search(ctx context.Context, query string) ([]domain.Profile, error)
	Update(ctx context.Context, username string, email, passwordHash *string) (domain.Profile, error)
	Delete(ctx context.Context, username string) error
}

// ObjectStorage stores uploaded files and hands out time-limited URLs for them.
type ObjectStorage interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// RefreshTokenStore keeps long-lived refresh tokens. Rotate must detect reuse of
// an already rotated token and revoke the whole family.
type RefreshTokenStore interface {
	Save(ctx context.Context, token, username string, expiresAt time.Time) error
	Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (username string, err error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, username string) error
}

type TokenIssuer interface {
	Issue(username string) (token string, expiresAt time.Time, err error)
	Verify(token string) (username string, err error)
}

// IdempotencyStore deduplicates post creation by client-supplied key.
// TryReserve reports false when key was already taken.
type IdempotencyStore interface {
	TryReserve(ctx context.Context, key string) (bool, error)
}

// NoopIdempotency accepts every key.
type NoopIdempotency struct{}

func (NoopIdempotency) TryReserve(context.Context, string) (bool, error) { return true, nil }

// UnitOfWork runs fn so that every repository call made with its ctx commits
// or rolls back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopUoW runs fn directly, for stores without transactions.
type NoopUoW struct{}

func (NoopUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Worker is a background loop that runs until ctx is cancelled.
type Worker interface {
	Start(ctx context.Context)
}
