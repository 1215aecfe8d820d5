package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"cms-service/internal/api"
	"cms-service/internal/domain"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setup(t *testing.T) (http.Handler, *InMemory) {
	t.Helper()
	mem, err := NewInMemory(InMemoryConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return NewRouter(NewServer(mem.Services)), mem
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// login registers username and returns its access token.
func login(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/register", "", api.RegisterRequest{Username: username, Email: username + "@example.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/auth/login", "", api.Credentials{Username: username, Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sess := decodeBody[domain.Session](t, rec)
	require.Equal(t, username, sess.Username)
	require.NotEmpty(t, sess.RefreshToken)
	return sess.AccessToken
}

func upload(t *testing.T, h http.Handler, path, token, name, contentType string, content []byte, postID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	if postID != "" {
		require.NoError(t, mw.WriteField("post_id", postID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestReadyz_FailingCheck(t *testing.T) {
	mem, err := NewInMemory(InMemoryConfig{})
	require.NoError(t, err)
	srv := NewServer(mem.Services)
	srv.SetReadyCheck(func(ctx context.Context) error { return errors.New("db down") })
	h := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"code":503,"message":"db not ready"}`, rec.Body.String())
}

func TestRequestIDPropagated(t *testing.T) {
	h, _ := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "rid-1", rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	h, _ := setup(t)
	rec := do(t, h, http.MethodGet, "/images", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, http.StatusUnauthorized, decodeBody[api.Error](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/images", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_DuplicateAndValidation(t *testing.T) {
	h, _ := setup(t)
	login(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/auth/register", "", api.RegisterRequest{Username: "alice", Password: "secret123"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/register", "", api.RegisterRequest{Username: "bob", Password: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[api.Error](t, rec).Message, "Password")

	rec = do(t, h, http.MethodPost, "/auth/login", "", api.Credentials{Username: "alice", Password: "wrong-pass"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	h, _ := setup(t)
	login(t, h, "alice")
	rec := do(t, h, http.MethodPost, "/auth/login", "", api.Credentials{Username: "alice", Password: "secret123"})
	first := decodeBody[domain.Session](t, rec)

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeBody[domain.Session](t, rec)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rec = do(t, h, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// the replay revoked the rotated token too
	rec = do(t, h, http.MethodPost, "/auth/refresh", "", api.RefreshRequest{RefreshToken: second.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/logout", "", api.RefreshRequest{RefreshToken: second.RefreshToken})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPostLifecycle(t *testing.T) {
	h, _ := setup(t)
	token := login(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/posts", token, api.PostInput{Title: ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/posts", token, api.PostInput{Title: "Hello world", Description: "first", SEO: api.SEO{Slug: "hello-world"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[api.PostWithContent](t, rec)
	require.Equal(t, "alice", created.AuthorUsername)
	require.Equal(t, "hello-world", created.SEO.Slug)
	require.Empty(t, created.Images)

	rec = do(t, h, http.MethodGet, "/posts/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/posts?search=hello", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]api.Post](t, rec), 1)

	rec = do(t, h, http.MethodPut, "/posts/"+created.ID, token, api.PostInput{Title: "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Renamed", decodeBody[api.PostWithContent](t, rec).Title)

	rec = do(t, h, http.MethodDelete, "/posts/"+created.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/posts/"+created.ID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"code":404,"message":"not found"}`, rec.Body.String())
}

func TestDeletePosts_Bulk(t *testing.T) {
	h, _ := setup(t)
	token := login(t, h, "alice")
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		rec := do(t, h, http.MethodPost, "/posts", token, api.PostInput{Title: title})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeBody[api.PostWithContent](t, rec).ID)
	}

	rec := do(t, h, http.MethodDelete, "/posts", token, api.DeletePostsRequest{IDs: ids[:2]})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, int64(2), decodeBody[api.DeletedResponse](t, rec).Deleted)

	rec = do(t, h, http.MethodDelete, "/posts", token, api.DeletePostsRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/posts", "", nil)
	posts := decodeBody[[]api.PostWithContent](t, rec)
	require.Len(t, posts, 1)
	require.Equal(t, ids[2], posts[0].ID)
}

func TestCreatePost_WithIdempotencyKey(t *testing.T) {
	h, _ := setup(t)
	token := login(t, h, "alice")
	b, _ := json.Marshal(api.PostInput{Title: "once"})
	req := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestImages_UploadLinkAndMainImageSplit(t *testing.T) {
	h, mem := setup(t)
	token := login(t, h, "alice")

	rec := upload(t, h, "/images", token, "cover.png", "image/png", []byte("png-bytes"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cover := decodeBody[api.Image](t, rec)
	require.True(t, strings.HasSuffix(cover.Path, "-cover.png"))
	require.Equal(t, "cover", cover.Title)
	require.True(t, strings.HasPrefix(cover.URL, "memory://gallery/"))
	data, ct, ok := mem.Objects.Get("gallery", cover.Path)
	require.True(t, ok)
	require.Equal(t, "image/png", ct)
	require.Equal(t, []byte("png-bytes"), data)

	rec = upload(t, h, "/images", token, "inline.jpg", "image/jpeg", []byte("jpg"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	inline := decodeBody[api.Image](t, rec)

	rec = do(t, h, http.MethodPost, "/posts", token, api.PostInput{Title: "with images", MainImageID: &cover.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decodeBody[api.PostWithContent](t, rec)

	rec = do(t, h, http.MethodPut, "/posts/"+post.ID+"/images/"+inline.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/posts/"+post.ID, "", nil)
	got := decodeBody[api.PostWithContent](t, rec)
	require.NotNil(t, got.MainImage)
	require.Equal(t, cover.ID, got.MainImage.ID)
	require.Len(t, got.Images, 1)
	require.Equal(t, inline.ID, got.Images[0].ID)

	rec = do(t, h, http.MethodPatch, "/images/"+inline.ID, token, map[string]string{"alt": "inline shot"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "inline shot", decodeBody[api.Image](t, rec).Alt)

	rec = do(t, h, http.MethodDelete, "/posts/"+post.ID+"/images/"+inline.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/posts/"+post.ID+"/images/"+inline.ID, token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/images/"+cover.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, _, ok = mem.Objects.Get("gallery", cover.Path)
	require.False(t, ok)

	rec = do(t, h, http.MethodGet, "/posts/"+post.ID, "", nil)
	got = decodeBody[api.PostWithContent](t, rec)
	require.Nil(t, got.MainImage)
	require.Nil(t, got.MainImageID)
}

func TestImages_RejectsWrongType(t *testing.T) {
	h, _ := setup(t)
	token := login(t, h, "alice")
	rec := upload(t, h, "/images", token, "notes.pdf", "application/pdf", []byte("%PDF"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocuments_AvailableFor(t *testing.T) {
	h, _ := setup(t)
	token := login(t, h, "alice")
	rec := do(t, h, http.MethodPost, "/posts", token, api.PostInput{Title: "docs"})
	post := decodeBody[api.PostWithContent](t, rec)

	rec = upload(t, h, "/documents", token, "Annual Report.pdf", "application/pdf", []byte("%PDF-1.7"), post.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	attached := decodeBody[api.Document](t, rec)
	require.Equal(t, []string{post.ID}, attached.PostIDs)

	rec = upload(t, h, "/documents", token, "spare.pdf", "application/pdf", []byte("%PDF-1.7"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	spare := decodeBody[api.Document](t, rec)

	rec = do(t, h, http.MethodGet, "/documents?available_for="+post.ID, token, nil)
	avail := decodeBody[[]api.Document](t, rec)
	require.Len(t, avail, 1)
	require.Equal(t, spare.ID, avail[0].ID)

	rec = do(t, h, http.MethodGet, "/documents", token, nil)
	require.Len(t, decodeBody[[]api.Document](t, rec), 2)

	rec = do(t, h, http.MethodPut, "/posts/"+post.ID+"/documents/"+spare.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/posts/"+post.ID, "", nil)
	require.Len(t, decodeBody[api.PostWithContent](t, rec).Documents, 2)

	rec = do(t, h, http.MethodDelete, "/documents/"+attached.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/posts/"+post.ID, "", nil)
	require.Len(t, decodeBody[api.PostWithContent](t, rec).Documents, 1)
}

func TestProfiles(t *testing.T) {
	h, _ := setup(t)
	alice := login(t, h, "alice")
	login(t, h, "bob")

	rec := do(t, h, http.MethodGet, "/profiles", alice, nil)
	require.Len(t, decodeBody[[]api.Profile](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/profiles?search=ali", alice, nil)
	profiles := decodeBody[[]api.Profile](t, rec)
	require.Len(t, profiles, 1)
	require.Equal(t, "alice", profiles[0].Username)

	rec = do(t, h, http.MethodGet, "/profiles?username=bob", alice, nil)
	require.Equal(t, "bob", decodeBody[[]api.Profile](t, rec)[0].Username)

	rec = do(t, h, http.MethodGet, "/profiles?username=carol", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	email := "new@example.com"
	rec = do(t, h, http.MethodPut, "/profiles/bob", alice, api.ProfileUpdate{Email: &email})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/profiles/alice", alice, api.ProfileUpdate{Email: &email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, email, decodeBody[api.Profile](t, rec).Email)

	rec = do(t, h, http.MethodDelete, "/profiles/alice", alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/profiles/alice", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	h, _ := setup(t)
	do(t, h, http.MethodGet, "/posts", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `cms_http_requests_total{method="GET",path="/posts",status="200"}`)
}

func TestUnknownRoute_JSONEnvelope(t *testing.T) {
	h, _ := setup(t)
	rec := do(t, h, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 404, decodeBody[api.Error](t, rec).Code)
}
