package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cms-service/internal/domain"
)

var ErrRepo = errors.New("repo error")

type fakePostRepo struct {
	posts  map[string]domain.Post
	links  *fakeLinkRepo
	images *fakeImageRepo
	seq    int
	err    error
}

func newFakePostRepo(links *fakeLinkRepo, images *fakeImageRepo) *fakePostRepo {
	return &fakePostRepo{posts: map[string]domain.Post{}, links: links, images: images}
}

func (f *fakePostRepo) List(ctx context.Context) ([]domain.PostWithContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.posts))
	for id := range f.posts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.PostWithContent, 0, len(ids))
	for _, id := range ids {
		p, _ := f.Get(ctx, id)
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePostRepo) Search(_ context.Context, q string) ([]domain.Post, error) {
	var out []domain.Post
	for _, p := range f.posts {
		if strings.Contains(strings.ToLower(p.Title), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePostRepo) Get(_ context.Context, id string) (domain.PostWithContent, error) {
	if f.err != nil {
		return domain.PostWithContent{}, f.err
	}
	p, ok := f.posts[id]
	if !ok {
		return domain.PostWithContent{}, ErrNotFound
	}
	out := domain.PostWithContent{Post: p}
	for _, imgID := range f.links.images[id] {
		if img, ok := f.images.items[imgID]; ok {
			out.Images = append(out.Images, img)
		}
	}
	for _, docID := range f.links.documents[id] {
		out.Documents = append(out.Documents, domain.Document{ID: docID})
	}
	return out, nil
}

func (f *fakePostRepo) Create(_ context.Context, np domain.NewPost) (domain.Post, error) {
	if f.err != nil {
		return domain.Post{}, f.err
	}
	f.seq++
	p := domain.Post{
		ID:             fmt.Sprintf("post-%d", f.seq),
		Title:          np.Title,
		Description:    np.Description,
		AuthorUsername: np.AuthorUsername,
		MainImageID:    np.MainImageID,
		SEO:            np.SEO,
	}
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakePostRepo) Update(_ context.Context, id string, np domain.NewPost) (domain.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return domain.Post{}, ErrNotFound
	}
	p.Title, p.Description, p.MainImageID, p.SEO = np.Title, np.Description, np.MainImageID, np.SEO
	f.posts[id] = p
	return p, nil
}

func (f *fakePostRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.posts[id]; !ok {
		return ErrNotFound
	}
	delete(f.posts, id)
	return nil
}

func (f *fakePostRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := f.posts[id]; ok {
			delete(f.posts, id)
			n++
		}
	}
	return n, nil
}

type fakeLinkRepo struct {
	images    map[string][]string
	documents map[string][]string
	err       error
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{images: map[string][]string{}, documents: map[string][]string{}}
}

func (f *fakeLinkRepo) LinkImage(_ context.Context, postID, imageID string) error {
	if f.err != nil {
		return f.err
	}
	f.images[postID] = append(f.images[postID], imageID)
	return nil
}

func (f *fakeLinkRepo) UnlinkImage(_ context.Context, postID, imageID string) error {
	f.images[postID] = without(f.images[postID], imageID)
	return nil
}

func (f *fakeLinkRepo) LinkDocument(_ context.Context, postID, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documents[postID] = append(f.documents[postID], documentID)
	return nil
}

func (f *fakeLinkRepo) UnlinkDocument(_ context.Context, postID, documentID string) error {
	f.documents[postID] = without(f.documents[postID], documentID)
	return nil
}

func (f *fakeLinkRepo) ClearLinks(_ context.Context, postID string) error {
	delete(f.images, postID)
	delete(f.documents, postID)
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type fakeImageRepo struct {
	items     map[string]domain.Image
	seq       int
	createErr error
	renewed   map[string]time.Time
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{items: map[string]domain.Image{}, renewed: map[string]time.Time{}}
}

func (f *fakeImageRepo) List(context.Context) ([]domain.Image, error) {
	out := make([]domain.Image, 0, len(f.items))
	for _, img := range f.items {
		out = append(out, img)
	}
	return out, nil
}

func (f *fakeImageRepo) Get(_ context.Context, id string) (domain.Image, error) {
	img, ok := f.items[id]
	if !ok {
		return domain.Image{}, ErrNotFound
	}
	return img, nil
}

func (f *fakeImageRepo) Create(_ context.Context, img domain.Image) (domain.Image, error) {
	if f.createErr != nil {
		return domain.Image{}, f.createErr
	}
	f.seq++
	img.ID = fmt.Sprintf("img-%d", f.seq)
	f.items[img.ID] = img
	return img, nil
}

func (f *fakeImageRepo) Update(_ context.Context, id string, patch domain.MediaPatch) (domain.Image, error) {
	img, ok := f.items[id]
	if !ok {
		return domain.Image{}, ErrNotFound
	}
	if patch.Title != nil {
		img.Title = *patch.Title
	}
	if patch.Alt != nil {
		img.Alt = *patch.Alt
	}
	f.items[id] = img
	return img, nil
}

func (f *fakeImageRepo) Delete(_ context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeImageRepo) ExpiringBefore(_ context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	var out []domain.SignedObject
	for _, img := range f.items {
		if img.URLExpiresAt.Before(t) {
			out = append(out, domain.SignedObject{ID: img.ID, Path: img.Path, URLExpiresAt: img.URLExpiresAt})
		}
	}
	return oldestFirst(out, limit), nil
}

func (f *fakeImageRepo) UpdateURL(_ context.Context, id, url string, expiresAt time.Time) error {
	img := f.items[id]
	img.URL, img.URLExpiresAt = url, expiresAt
	f.items[id] = img
	f.renewed[id] = expiresAt
	return nil
}

type fakeDocumentRepo struct {
	items map[string]domain.Document
	seq   int
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{items: map[string]domain.Document{}}
}

func (f *fakeDocumentRepo) List(context.Context) ([]domain.Document, error) {
	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.items[id])
	}
	return out, nil
}

func (f *fakeDocumentRepo) Get(_ context.Context, id string) (domain.Document, error) {
	d, ok := f.items[id]
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeDocumentRepo) Create(_ context.Context, d domain.Document) (domain.Document, error) {
	f.seq++
	d.ID = fmt.Sprintf("doc-%d", f.seq)
	f.items[d.ID] = d
	return d, nil
}

func (f *fakeDocumentRepo) Update(_ context.Context, id string, patch domain.MediaPatch) (domain.Document, error) {
	d, ok := f.items[id]
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	f.items[id] = d
	return d, nil
}

func (f *fakeDocumentRepo) Delete(_ context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeDocumentRepo) ExpiringBefore(_ context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	var out []domain.SignedObject
	for _, d := range f.items {
		if d.URLExpiresAt.Before(t) {
			out = append(out, domain.SignedObject{ID: d.ID, Path: d.Path, URLExpiresAt: d.URLExpiresAt})
		}
	}
	return oldestFirst(out, limit), nil
}

func (f *fakeDocumentRepo) UpdateURL(_ context.Context, id, url string, expiresAt time.Time) error {
	d := f.items[id]
	d.URL, d.URLExpiresAt = url, expiresAt
	f.items[id] = d
	return nil
}

type fakeStorage struct {
	objects   map[string][]byte
	uploadErr error
	signErr   error
	badKeys   map[string]bool
	deleted   []string
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objects: map[string][]byte{}} }

func (f *fakeStorage) Upload(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = buf.Bytes()
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

func (f *fakeStorage) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	if f.badKeys[key] {
		return "", fmt.Errorf("sign %s: access denied", key)
	}
	return fmt.Sprintf("https://storage.test/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

type fakeProfileRepo struct {
	items map[string]domain.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{items: map[string]domain.Profile{}}
}

func (f *fakeProfileRepo) Create(_ context.Context, p domain.Profile) (domain.Profile, error) {
	p.ID = "prof-" + p.Username
	f.items[p.Username] = p
	return p, nil
}

func (f *fakeProfileRepo) GetByUsername(_ context.Context, username string) (domain.Profile, error) {
	p, ok := f.items[username]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileRepo) List(context.Context) ([]domain.Profile, error) {
	out := make([]domain.Profile, 0, len(f.items))
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfileRepo) Search(_ context.Context, q string) ([]domain.Profile, error) {
	var out []domain.Profile
	for _, p := range f.items {
		if strings.Contains(p.Username, q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProfileRepo) Update(_ context.Context, username string, email, passwordHash *string) (domain.Profile, error) {
	p, ok := f.items[username]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	if email != nil {
		p.Email = *email
	}
	if passwordHash != nil {
		p.PasswordHash = *passwordHash
	}
	f.items[username] = p
	return p, nil
}

func (f *fakeProfileRepo) Delete(_ context.Context, username string) error {
	if _, ok := f.items[username]; !ok {
		return ErrNotFound
	}
	delete(f.items, username)
	return nil
}

type fakeRefreshStore struct {
	tokens  map[string]string
	rotated map[string]bool
	revoked []string
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{tokens: map[string]string{}, rotated: map[string]bool{}}
}

func (f *fakeRefreshStore) Save(_ context.Context, token, username string, _ time.Time) error {
	f.tokens[token] = username
	return nil
}

func (f *fakeRefreshStore) Rotate(_ context.Context, oldToken, newToken string, _ time.Time) (string, error) {
	username, ok := f.tokens[oldToken]
	if !ok {
		return "", ErrUnauthorized
	}
	delete(f.tokens, oldToken)
	f.rotated[oldToken] = true
	f.tokens[newToken] = username
	return username, nil
}

func (f *fakeRefreshStore) Revoke(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshStore) RevokeAll(_ context.Context, username string) error {
	for t, u := range f.tokens {
		if u == username {
			delete(f.tokens, t)
		}
	}
	f.revoked = append(f.revoked, username)
	return nil
}

type fakeIssuer struct{ now time.Time }

func (f fakeIssuer) Issue(username string) (string, time.Time, error) {
	return "access-" + username, f.now.Add(15 * time.Minute), nil
}

func (f fakeIssuer) Verify(token string) (string, error) {
	if !strings.HasPrefix(token, "access-") {
		return "", errors.New("malformed token")
	}
	return strings.TrimPrefix(token, "access-"), nil
}

type fakeIdem struct{ seen map[string]bool }

func (f *fakeIdem) TryReserve(_ context.Context, key string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

// recordingUoW counts units of work and runs them inline.
type recordingUoW struct{ calls int }

func (u *recordingUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	return fn(ctx)
}

func oldestFirst(objs []domain.SignedObject, limit int) []domain.SignedObject {
	sort.Slice(objs, func(i, j int) bool { return objs[i].URLExpiresAt.Before(objs[j].URLExpiresAt) })
	if len(objs) > limit {
		objs = objs[:limit]
	}
	return objs
}
