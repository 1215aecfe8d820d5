package application

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cms-service/internal/domain"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Upload is a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Buckets struct {
	Gallery   string
	Documents string
}

type MediaService struct {
	images    ImageRepo
	documents DocumentRepo
	links     LinkRepo
	storage   ObjectStorage
	buckets   Buckets
	signedTTL time.Duration
	clock     clockwork.Clock
	log       *zap.Logger

	// rows whose re-signing failed, skipped until the recorded time
	mu       sync.Mutex
	heldBack map[string]time.Time
}

// resignRetryDelay is how long a row that failed to re-sign is skipped.
const resignRetryDelay = 15 * time.Minute

type MediaOption func(*MediaService)

func WithMediaClock(c clockwork.Clock) MediaOption { return func(s *MediaService) { s.clock = c } }
func WithMediaLogger(l *zap.Logger) MediaOption    { return func(s *MediaService) { s.log = l } }

func NewMediaService(images ImageRepo, documents DocumentRepo, links LinkRepo, storage ObjectStorage, buckets Buckets, signedTTL time.Duration, opts ...MediaOption) *MediaService {
	s := &MediaService{
		images:    images,
		documents: documents,
		links:     links,
		storage:   storage,
		buckets:   buckets,
		signedTTL: signedTTL,
		heldBack:  map[string]time.Time{},
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

func (s *MediaService) ListImages(ctx context.Context) ([]domain.Image, error) {
	return s.images.List(ctx)
}

// UploadImage stores the file under "<unix-millis>-<sanitized name>", records it
// in the gallery and optionally links it to postID.
func (s *MediaService) UploadImage(ctx context.Context, up Upload, postID *string) (domain.Image, error) {
	if !strings.HasPrefix(up.ContentType, "image/") {
		return domain.Image{}, fmt.Errorf("content type %q is not an image: %w", up.ContentType, ErrBadRequest)
	}
	key, err := s.objectKey(up.Name)
	if err != nil {
		return domain.Image{}, err
	}
	url, expiresAt, err := s.store(ctx, s.buckets.Gallery, key, up)
	if err != nil {
		return domain.Image{}, err
	}

	title := domain.ImageTitle(up.Name)
	img, err := s.images.Create(ctx, domain.Image{
		Title:        title,
		Alt:          title,
		URL:          url,
		Path:         key,
		URLExpiresAt: expiresAt,
	})
	if err != nil {
		s.discard(ctx, s.buckets.Gallery, key)
		return domain.Image{}, err
	}
	if postID != nil && *postID != "" {
		if err := s.links.LinkImage(ctx, *postID, img.ID); err != nil {
			if derr := s.images.Delete(ctx, img.ID); derr != nil {
				s.log.Warn("media.unlinked_row_left", zap.String("id", img.ID), zap.Error(derr))
			}
			s.discard(ctx, s.buckets.Gallery, key)
			return domain.Image{}, fmt.Errorf("link image: %w", err)
		}
		img.PostIDs = append(img.PostIDs, *postID)
	}
	s.log.Info("media.image_uploaded", zap.String("id", img.ID), zap.String("path", key))
	return img, nil
}

func (s *MediaService) UpdateImage(ctx context.Context, id string, patch domain.MediaPatch) (domain.Image, error) {
	return s.images.Update(ctx, id, patch)
}

// DeleteImage removes the stored object first, then the gallery row.
func (s *MediaService) DeleteImage(ctx context.Context, id string) error {
	img, err := s.images.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, s.buckets.Gallery, img.Path); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return s.images.Delete(ctx, id)
}

func (s *MediaService) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return s.documents.List(ctx)
}

// AvailableDocuments lists documents not yet linked to postID.
func (s *MediaService) AvailableDocuments(ctx context.Context, postID string) ([]domain.Document, error) {
	docs, err := s.documents.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if !domain.LinkedTo(d.PostIDs, postID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MediaService) UploadDocument(ctx context.Context, up Upload, postID *string) (domain.Document, error) {
	if up.ContentType != "application/pdf" {
		return domain.Document{}, fmt.Errorf("content type %q is not a pdf: %w", up.ContentType, ErrBadRequest)
	}
	key, err := s.objectKey(up.Name)
	if err != nil {
		return domain.Document{}, err
	}
	url, expiresAt, err := s.store(ctx, s.buckets.Documents, key, up)
	if err != nil {
		return domain.Document{}, err
	}

	doc, err := s.documents.Create(ctx, domain.Document{
		Title:        domain.DocumentTitle(up.Name),
		URL:          url,
		Path:         key,
		URLExpiresAt: expiresAt,
	})
	if err != nil {
		s.discard(ctx, s.buckets.Documents, key)
		return domain.Document{}, err
	}
	if postID != nil && *postID != "" {
		if err := s.links.LinkDocument(ctx, *postID, doc.ID); err != nil {
			if derr := s.documents.Delete(ctx, doc.ID); derr != nil {
				s.log.Warn("media.unlinked_row_left", zap.String("id", doc.ID), zap.Error(derr))
			}
			s.discard(ctx, s.buckets.Documents, key)
			return domain.Document{}, fmt.Errorf("link document: %w", err)
		}
		doc.PostIDs = append(doc.PostIDs, *postID)
	}
	s.log.Info("media.document_uploaded", zap.String("id", doc.ID), zap.String("path", key))
	return doc, nil
}

func (s *MediaService) UpdateDocument(ctx context.Context, id string, patch domain.MediaPatch) (domain.Document, error) {
	return s.documents.Update(ctx, id, patch)
}

func (s *MediaService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, s.buckets.Documents, doc.Path); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return s.documents.Delete(ctx, id)
}

func (s *MediaService) LinkImage(ctx context.Context, postID, imageID string) error {
	return s.links.LinkImage(ctx, postID, imageID)
}

func (s *MediaService) UnlinkImage(ctx context.Context, postID, imageID string) error {
	return s.links.UnlinkImage(ctx, postID, imageID)
}

func (s *MediaService) LinkDocument(ctx context.Context, postID, documentID string) error {
	return s.links.LinkDocument(ctx, postID, documentID)
}

func (s *MediaService) UnlinkDocument(ctx context.Context, postID, documentID string) error {
	return s.links.UnlinkDocument(ctx, postID, documentID)
}

// RefreshSignedURLs re-signs up to limit images and up to limit documents whose
// URL expires within window. A row that fails is skipped for resignRetryDelay so
// it cannot take the batch from the others. It returns how many URLs were renewed.
func (s *MediaService) RefreshSignedURLs(ctx context.Context, window time.Duration, limit int) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(window)
	held := s.pruneHeldBack(now)

	imgs, err := s.images.ExpiringBefore(ctx, cutoff, limit+held)
	if err != nil {
		return 0, fmt.Errorf("list expiring images: %w", err)
	}
	renewed := s.resignBatch(ctx, "image", s.buckets.Gallery, imgs, limit, now, s.images.UpdateURL)

	docs, err := s.documents.ExpiringBefore(ctx, cutoff, limit+held)
	if err != nil {
		return renewed, fmt.Errorf("list expiring documents: %w", err)
	}
	renewed += s.resignBatch(ctx, "document", s.buckets.Documents, docs, limit, now, s.documents.UpdateURL)
	return renewed, nil
}

func (s *MediaService) resignBatch(ctx context.Context, kind, bucket string, objs []domain.SignedObject, limit int, now time.Time,
	save func(context.Context, string, string, time.Time) error) int {
	renewed, attempted := 0, 0
	for _, o := range objs {
		if attempted == limit {
			break
		}
		id := kind + ":" + o.ID
		if s.isHeldBack(id, now) {
			continue
		}
		attempted++
		if err := s.resign(ctx, bucket, o, save); err != nil {
			s.holdBack(id, now.Add(resignRetryDelay))
			s.log.Warn("media.resign_failed", zap.String("kind", kind), zap.String("id", o.ID), zap.Error(err))
			continue
		}
		renewed++
	}
	return renewed
}

// pruneHeldBack forgets rows whose retry time has come and returns how many remain held.
func (s *MediaService) pruneHeldBack(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, until := range s.heldBack {
		if !now.Before(until) {
			delete(s.heldBack, id)
		}
	}
	return len(s.heldBack)
}

func (s *MediaService) isHeldBack(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.heldBack[id]
	return ok && now.Before(until)
}

func (s *MediaService) holdBack(id string, until time.Time) {
	s.mu.Lock()
	s.heldBack[id] = until
	s.mu.Unlock()
}

func (s *MediaService) resign(ctx context.Context, bucket string, o domain.SignedObject, save func(context.Context, string, string, time.Time) error) error {
	url, err := s.storage.PresignGet(ctx, bucket, o.Path, s.signedTTL)
	if err != nil {
		return err
	}
	return save(ctx, o.ID, url, s.clock.Now().Add(s.signedTTL))
}

func (s *MediaService) objectKey(name string) (string, error) {
	clean := domain.SanitizeFileName(strings.TrimSpace(name))
	if clean == "" || strings.Trim(clean, "._") == "" {
		return "", fmt.Errorf("%q: %w", name, domain.ErrInvalidFileName)
	}
	return fmt.Sprintf("%d-%s", s.clock.Now().UnixMilli(), clean), nil
}

func (s *MediaService) store(ctx context.Context, bucket, key string, up Upload) (string, time.Time, error) {
	if err := s.storage.Upload(ctx, bucket, key, up.Body, up.Size, up.ContentType); err != nil {
		return "", time.Time{}, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := s.storage.PresignGet(ctx, bucket, key, s.signedTTL)
	if err != nil {
		s.discard(ctx, bucket, key)
		return "", time.Time{}, fmt.Errorf("sign %s: %w", key, err)
	}
	return url, s.clock.Now().Add(s.signedTTL), nil
}

func (s *MediaService) discard(ctx context.Context, bucket, key string) {
	if err := s.storage.Delete(ctx, bucket, key); err != nil {
		s.log.Warn("media.discard_failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
	}
}
