package httpserver

import (
	"context"
	"net/http"
	"strings"

	"cms-service/internal/api"
	"cms-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (s *Server) ListPosts(w http.ResponseWriter, r *http.Request) {
	if q := strings.TrimSpace(r.URL.Query().Get("search")); q != "" {
		posts, err := s.posts.SearchPosts(r.Context(), q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out := make([]api.Post, 0, len(posts))
		for _, p := range posts {
			out = append(out, api.FromPost(p))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	posts, err := s.posts.ListPosts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postsWithContent(posts))
}

func (s *Server) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.posts.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromPostWithContent(p))
}

func (s *Server) CreatePost(w http.ResponseWriter, r *http.Request) {
	var body api.PostInput
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	var idemKey *string
	if k := r.Header.Get("X-Idempotency-Key"); k != "" {
		idemKey = &k
	}
	p, err := s.posts.CreatePost(r.Context(), body.NewPost(CurrentUser(r.Context())), idemKey)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromPostWithContent(p))
}

func (s *Server) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var body api.PostInput
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	p, err := s.posts.UpdatePost(r.Context(), chi.URLParam(r, "id"), body.NewPost(CurrentUser(r.Context())))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromPostWithContent(p))
}

func (s *Server) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.posts.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DeletePosts(w http.ResponseWriter, r *http.Request) {
	var body api.DeletePostsRequest
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	n, err := s.posts.DeletePosts(r.Context(), body.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DeletedResponse{Deleted: n})
}

func (s *Server) LinkImage(w http.ResponseWriter, r *http.Request) {
	s.link(w, r, s.media.LinkImage, chi.URLParam(r, "imageID"))
}

func (s *Server) UnlinkImage(w http.ResponseWriter, r *http.Request) {
	s.link(w, r, s.media.UnlinkImage, chi.URLParam(r, "imageID"))
}

func (s *Server) LinkDocument(w http.ResponseWriter, r *http.Request) {
	s.link(w, r, s.media.LinkDocument, chi.URLParam(r, "documentID"))
}

func (s *Server) UnlinkDocument(w http.ResponseWriter, r *http.Request) {
	s.link(w, r, s.media.UnlinkDocument, chi.URLParam(r, "documentID"))
}

type linkFunc func(ctx context.Context, postID, targetID string) error

func (s *Server) link(w http.ResponseWriter, r *http.Request, fn linkFunc, targetID string) {
	if err := fn(r.Context(), chi.URLParam(r, "id"), targetID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func postsWithContent(posts []domain.PostWithContent) []api.PostWithContent {
	out := make([]api.PostWithContent, 0, len(posts))
	for _, p := range posts {
		out = append(out, api.FromPostWithContent(p))
	}
	return out
}
