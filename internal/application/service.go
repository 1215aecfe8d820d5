package application

import (
	"context"
	"fmt"
	"strings"

	"cms-service/internal/domain"

	"go.uber.org/zap"
)

type PostService struct {
	posts PostRepo
	links LinkRepo
	idem  IdempotencyStore
	uow   UnitOfWork
	log   *zap.Logger
}

type PostOption func(*PostService)

func WithUnitOfWork(u UnitOfWork) PostOption  { return func(s *PostService) { s.uow = u } }
func WithPostLogger(l *zap.Logger) PostOption { return func(s *PostService) { s.log = l } }

func NewPostService(posts PostRepo, links LinkRepo, idem IdempotencyStore, opts ...PostOption) *PostService {
	s := &PostService{
		posts: posts,
		links: links,
		idem:  idem,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idem == nil {
		s.idem = NoopIdempotency{}
	}
	if s.uow == nil {
		s.uow = NoopUoW{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *PostService) ListPosts(ctx context.Context) ([]domain.PostWithContent, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i] = withMainImageSplit(posts[i])
	}
	return posts, nil
}

func (s *PostService) SearchPosts(ctx context.Context, query string) ([]domain.Post, error) {
	return s.posts.Search(ctx, strings.TrimSpace(query))
}

func (s *PostService) GetPost(ctx context.Context, id string) (domain.PostWithContent, error) {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return domain.PostWithContent{}, err
	}
	return withMainImageSplit(p), nil
}

// CreatePost stores the post and links its gallery and documents in one unit of work.
// A repeated idemKey is rejected with ErrConflict.
func (s *PostService) CreatePost(ctx context.Context, np domain.NewPost, idemKey *string) (domain.PostWithContent, error) {
	if err := validateNewPost(np); err != nil {
		return domain.PostWithContent{}, err
	}
	if idemKey != nil && *idemKey != "" {
		ok, err := s.idem.TryReserve(ctx, "posts:create:"+*idemKey)
		if err != nil {
			return domain.PostWithContent{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !ok {
			return domain.PostWithContent{}, fmt.Errorf("duplicate request %q: %w", *idemKey, ErrConflict)
		}
	}

	var id string
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		post, err := s.posts.Create(ctx, np)
		if err != nil {
			return err
		}
		id = post.ID
		return s.link(ctx, id, np)
	})
	if err != nil {
		s.log.Warn("post.create_failed", zap.String("title", np.Title), zap.Error(err))
		return domain.PostWithContent{}, err
	}
	s.log.Info("post.created", zap.String("id", id))
	return s.GetPost(ctx, id)
}

// UpdatePost replaces the post fields and its links.
func (s *PostService) UpdatePost(ctx context.Context, id string, np domain.NewPost) (domain.PostWithContent, error) {
	if err := validateNewPost(np); err != nil {
		return domain.PostWithContent{}, err
	}
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := s.posts.Update(ctx, id, np); err != nil {
			return err
		}
		if err := s.links.ClearLinks(ctx, id); err != nil {
			return err
		}
		return s.link(ctx, id, np)
	})
	if err != nil {
		return domain.PostWithContent{}, err
	}
	return s.GetPost(ctx, id)
}

func (s *PostService) DeletePost(ctx context.Context, id string) error {
	return s.posts.Delete(ctx, id)
}

func (s *PostService) DeletePosts(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("no ids: %w", ErrBadRequest)
	}
	return s.posts.DeleteMany(ctx, ids)
}

func (s *PostService) link(ctx context.Context, postID string, np domain.NewPost) error {
	for _, imageID := range galleryIDs(np) {
		if err := s.links.LinkImage(ctx, postID, imageID); err != nil {
			return fmt.Errorf("link image %s: %w", imageID, err)
		}
	}
	for _, docID := range dedupe(np.DocumentIDs) {
		if err := s.links.LinkDocument(ctx, postID, docID); err != nil {
			return fmt.Errorf("link document %s: %w", docID, err)
		}
	}
	return nil
}

// galleryIDs is the set of images linked to a post; the main image is part of it.
func galleryIDs(np domain.NewPost) []string {
	ids := np.ImageIDs
	if np.MainImageID != nil && *np.MainImageID != "" {
		ids = append([]string{*np.MainImageID}, ids...)
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func withMainImageSplit(p domain.PostWithContent) domain.PostWithContent {
	main, rest := domain.SplitMainImage(p.MainImageID, p.Images)
	if p.MainImage == nil {
		p.MainImage = main
	}
	p.Images = rest
	return p
}

func validateNewPost(np domain.NewPost) error {
	if strings.TrimSpace(np.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrBadRequest)
	}
	if strings.TrimSpace(np.AuthorUsername) == "" {
		return fmt.Errorf("author is required: %w", ErrBadRequest)
	}
	return nil
}
