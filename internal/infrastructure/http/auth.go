package httpserver

import (
	"context"
	"net/http"
	"strings"

	"cms-service/internal/api"
)

type userKey struct{}

// CurrentUser returns the username the bearer token was issued to.
func CurrentUser(ctx context.Context) string {
	v, _ := ctx.Value(userKey{}).(string)
	return v
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		username, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(h[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, username)))
	})
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var body api.RegisterRequest
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	p, err := s.auth.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromProfile(p))
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body api.Credentials
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var body api.RefreshRequest
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	sess, err := s.auth.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var body api.RefreshRequest
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	if err := s.auth.Logout(r.Context(), body.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
