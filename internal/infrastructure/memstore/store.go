// Package memstore is an in-process implementation of the CMS repositories.
// It backs local runs without Postgres and the HTTP and end-to-end tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store holds all tables; the repository views share its lock.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	posts      map[string]domain.Post
	postOrder  []string
	images     map[string]domain.Image
	documents  map[string]domain.Document
	postImages map[string][]string
	postDocs   map[string][]string
	profiles   map[string]domain.Profile
}

func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:      clock,
		posts:      map[string]domain.Post{},
		images:     map[string]domain.Image{},
		documents:  map[string]domain.Document{},
		postImages: map[string][]string{},
		postDocs:   map[string][]string{},
		profiles:   map[string]domain.Profile{},
	}
}

func (s *Store) Posts() *PostRepo         { return &PostRepo{s} }
func (s *Store) Links() *LinkRepo         { return &LinkRepo{s} }
func (s *Store) Images() *ImageRepo       { return &ImageRepo{s} }
func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{s} }
func (s *Store) Profiles() *ProfileRepo   { return &ProfileRepo{s} }

var (
	_ application.PostRepo     = (*PostRepo)(nil)
	_ application.LinkRepo     = (*LinkRepo)(nil)
	_ application.ImageRepo    = (*ImageRepo)(nil)
	_ application.DocumentRepo = (*DocumentRepo)(nil)
	_ application.ProfileRepo  = (*ProfileRepo)(nil)
)

// linkedPosts returns the posts a target is linked to, in post order.
func (s *Store) linkedPosts(junction map[string][]string, targetID string) []string {
	out := []string{}
	for _, postID := range s.postOrder {
		for _, id := range junction[postID] {
			if id == targetID {
				out = append(out, postID)
				break
			}
		}
	}
	return out
}

func (s *Store) image(id string) domain.Image {
	img := s.images[id]
	img.PostIDs = s.linkedPosts(s.postImages, id)
	return img
}

func (s *Store) document(id string) domain.Document {
	d := s.documents[id]
	d.PostIDs = s.linkedPosts(s.postDocs, id)
	return d
}

func remove(ids []string, id string) ([]string, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

type PostRepo struct{ s *Store }

func (r *PostRepo) List(_ context.Context) ([]domain.PostWithContent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.PostWithContent, 0, len(r.s.postOrder))
	for i := len(r.s.postOrder) - 1; i >= 0; i-- {
		out = append(out, r.withContent(r.s.postOrder[i]))
	}
	return out, nil
}

func (r *PostRepo) Search(_ context.Context, query string) ([]domain.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q := strings.ToLower(query)
	out := []domain.Post{}
	for i := len(r.s.postOrder) - 1; i >= 0; i-- {
		p := r.s.posts[r.s.postOrder[i]]
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PostRepo) Get(_ context.Context, id string) (domain.PostWithContent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.posts[id]; !ok {
		return domain.PostWithContent{}, application.ErrNotFound
	}
	return r.withContent(id), nil
}

func (r *PostRepo) withContent(id string) domain.PostWithContent {
	out := domain.PostWithContent{Post: r.s.posts[id], Images: []domain.Image{}, Documents: []domain.Document{}}
	for _, imgID := range r.s.postImages[id] {
		out.Images = append(out.Images, r.s.image(imgID))
	}
	for _, docID := range r.s.postDocs[id] {
		out.Documents = append(out.Documents, r.s.document(docID))
	}
	return out
}

func (r *PostRepo) Create(_ context.Context, np domain.NewPost) (domain.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkMainImage(np.MainImageID); err != nil {
		return domain.Post{}, err
	}
	now := r.s.clock.Now()
	p := domain.Post{
		ID:             uuid.NewString(),
		Title:          np.Title,
		Description:    np.Description,
		AuthorUsername: np.AuthorUsername,
		MainImageID:    mainImage(np.MainImageID),
		SEO:            np.SEO,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.s.posts[p.ID] = p
	r.s.postOrder = append(r.s.postOrder, p.ID)
	return p, nil
}

func (r *PostRepo) Update(_ context.Context, id string, np domain.NewPost) (domain.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return domain.Post{}, application.ErrNotFound
	}
	if err := r.checkMainImage(np.MainImageID); err != nil {
		return domain.Post{}, err
	}
	p.Title, p.Description, p.SEO = np.Title, np.Description, np.SEO
	p.MainImageID = mainImage(np.MainImageID)
	p.UpdatedAt = r.s.clock.Now()
	r.s.posts[id] = p
	return p, nil
}

func (r *PostRepo) checkMainImage(id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	if _, ok := r.s.images[*id]; !ok {
		return fmt.Errorf("main image %s: %w", *id, application.ErrNotFound)
	}
	return nil
}

func mainImage(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}

func (r *PostRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.delete(id) {
		return application.ErrNotFound
	}
	return nil
}

func (r *PostRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r.delete(id) {
			n++
		}
	}
	return n, nil
}

func (r *PostRepo) delete(id string) bool {
	if _, ok := r.s.posts[id]; !ok {
		return false
	}
	delete(r.s.posts, id)
	delete(r.s.postImages, id)
	delete(r.s.postDocs, id)
	r.s.postOrder, _ = remove(r.s.postOrder, id)
	return true
}

type LinkRepo struct{ s *Store }

func (r *LinkRepo) LinkImage(_ context.Context, postID, imageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.images[imageID]; !ok {
		return fmt.Errorf("image %s: %w", imageID, application.ErrNotFound)
	}
	return r.link(r.s.postImages, postID, imageID)
}

func (r *LinkRepo) UnlinkImage(_ context.Context, postID, imageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.unlink(r.s.postImages, postID, imageID)
}

func (r *LinkRepo) LinkDocument(_ context.Context, postID, documentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.documents[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, application.ErrNotFound)
	}
	return r.link(r.s.postDocs, postID, documentID)
}

func (r *LinkRepo) UnlinkDocument(_ context.Context, postID, documentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.unlink(r.s.postDocs, postID, documentID)
}

func (r *LinkRepo) ClearLinks(_ context.Context, postID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.postImages, postID)
	delete(r.s.postDocs, postID)
	return nil
}

func (r *LinkRepo) link(junction map[string][]string, postID, targetID string) error {
	if _, ok := r.s.posts[postID]; !ok {
		return fmt.Errorf("post %s: %w", postID, application.ErrNotFound)
	}
	for _, id := range junction[postID] {
		if id == targetID {
			return nil
		}
	}
	junction[postID] = append(junction[postID], targetID)
	return nil
}

func (r *LinkRepo) unlink(junction map[string][]string, postID, targetID string) error {
	ids, ok := remove(junction[postID], targetID)
	if !ok {
		return application.ErrNotFound
	}
	junction[postID] = ids
	return nil
}

type ImageRepo struct{ s *Store }

func (r *ImageRepo) List(_ context.Context) ([]domain.Image, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Image, 0, len(r.s.images))
	for id := range r.s.images {
		out = append(out, r.s.image(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func (r *ImageRepo) Get(_ context.Context, id string) (domain.Image, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.images[id]; !ok {
		return domain.Image{}, application.ErrNotFound
	}
	return r.s.image(id), nil
}

func (r *ImageRepo) Create(_ context.Context, img domain.Image) (domain.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.images {
		if existing.Path == img.Path {
			return domain.Image{}, fmt.Errorf("path %s: %w", img.Path, application.ErrConflict)
		}
	}
	img.ID = uuid.NewString()
	img.PostIDs = nil
	r.s.images[img.ID] = img
	return r.s.image(img.ID), nil
}

func (r *ImageRepo) Update(_ context.Context, id string, patch domain.MediaPatch) (domain.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[id]
	if !ok {
		return domain.Image{}, application.ErrNotFound
	}
	if patch.Title != nil {
		img.Title = *patch.Title
	}
	if patch.Alt != nil {
		img.Alt = *patch.Alt
	}
	r.s.images[id] = img
	return r.s.image(id), nil
}

// Delete drops the image from every gallery and clears it as a main image.
func (r *ImageRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.images[id]; !ok {
		return application.ErrNotFound
	}
	delete(r.s.images, id)
	for postID, ids := range r.s.postImages {
		r.s.postImages[postID], _ = remove(ids, id)
	}
	for postID, p := range r.s.posts {
		if p.MainImageID != nil && *p.MainImageID == id {
			p.MainImageID = nil
			r.s.posts[postID] = p
		}
	}
	return nil
}

func (r *ImageRepo) ExpiringBefore(_ context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.SignedObject
	for _, img := range r.s.images {
		if img.URLExpiresAt.Before(t) {
			out = append(out, domain.SignedObject{ID: img.ID, Path: img.Path, URLExpiresAt: img.URLExpiresAt})
		}
	}
	return oldestFirst(out, limit), nil
}

func (r *ImageRepo) UpdateURL(_ context.Context, id, url string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[id]
	if !ok {
		return application.ErrNotFound
	}
	img.URL, img.URLExpiresAt = url, expiresAt
	r.s.images[id] = img
	return nil
}

type DocumentRepo struct{ s *Store }

func (r *DocumentRepo) List(_ context.Context) ([]domain.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Document, 0, len(r.s.documents))
	for id := range r.s.documents {
		out = append(out, r.s.document(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func (r *DocumentRepo) Get(_ context.Context, id string) (domain.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.documents[id]; !ok {
		return domain.Document{}, application.ErrNotFound
	}
	return r.s.document(id), nil
}

func (r *DocumentRepo) Create(_ context.Context, d domain.Document) (domain.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.documents {
		if existing.Path == d.Path {
			return domain.Document{}, fmt.Errorf("path %s: %w", d.Path, application.ErrConflict)
		}
	}
	d.ID = uuid.NewString()
	d.PostIDs = nil
	r.s.documents[d.ID] = d
	return r.s.document(d.ID), nil
}

func (r *DocumentRepo) Update(_ context.Context, id string, patch domain.MediaPatch) (domain.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.documents[id]
	if !ok {
		return domain.Document{}, application.ErrNotFound
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	r.s.documents[id] = d
	return r.s.document(id), nil
}

func (r *DocumentRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.documents[id]; !ok {
		return application.ErrNotFound
	}
	delete(r.s.documents, id)
	for postID, ids := range r.s.postDocs {
		r.s.postDocs[postID], _ = remove(ids, id)
	}
	return nil
}

func (r *DocumentRepo) ExpiringBefore(_ context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.SignedObject
	for _, d := range r.s.documents {
		if d.URLExpiresAt.Before(t) {
			out = append(out, domain.SignedObject{ID: d.ID, Path: d.Path, URLExpiresAt: d.URLExpiresAt})
		}
	}
	return oldestFirst(out, limit), nil
}

func (r *DocumentRepo) UpdateURL(_ context.Context, id, url string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.documents[id]
	if !ok {
		return application.ErrNotFound
	}
	d.URL, d.URLExpiresAt = url, expiresAt
	r.s.documents[id] = d
	return nil
}

func oldestFirst(objs []domain.SignedObject, limit int) []domain.SignedObject {
	sort.Slice(objs, func(i, j int) bool { return objs[i].URLExpiresAt.Before(objs[j].URLExpiresAt) })
	if limit > 0 && len(objs) > limit {
		objs = objs[:limit]
	}
	return objs
}

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) Create(_ context.Context, p domain.Profile) (domain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[p.Username]; ok {
		return domain.Profile{}, fmt.Errorf("username %s: %w", p.Username, application.ErrConflict)
	}
	p.ID = uuid.NewString()
	p.CreatedAt = r.s.clock.Now()
	r.s.profiles[p.Username] = p
	return p, nil
}

func (r *ProfileRepo) GetByUsername(_ context.Context, username string) (domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.profiles[username]
	if !ok {
		return domain.Profile{}, application.ErrNotFound
	}
	return p, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	return r.Search(ctx, "")
}

func (r *ProfileRepo) Search(_ context.Context, query string) ([]domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q := strings.ToLower(query)
	out := []domain.Profile{}
	for _, p := range r.s.profiles {
		if strings.Contains(strings.ToLower(p.Username), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *ProfileRepo) Update(_ context.Context, username string, email, passwordHash *string) (domain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[username]
	if !ok {
		return domain.Profile{}, application.ErrNotFound
	}
	if email != nil {
		p.Email = *email
	}
	if passwordHash != nil {
		p.PasswordHash = *passwordHash
	}
	r.s.profiles[username] = p
	return p, nil
}

func (r *ProfileRepo) Delete(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[username]; !ok {
		return application.ErrNotFound
	}
	delete(r.s.profiles, username)
	return nil
}
