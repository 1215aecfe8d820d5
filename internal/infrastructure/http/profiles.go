package httpserver

import (
	"net/http"
	"strings"

	"cms-service/internal/api"
	"cms-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

// ListProfiles supports ?username= for an exact lookup and ?search= for a
// substring match on usernames.
func (s *Server) ListProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if username := strings.TrimSpace(q.Get("username")); username != "" {
		p, err := s.profiles.Get(r.Context(), username)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []api.Profile{api.FromProfile(p)})
		return
	}

	var (
		profiles []domain.Profile
		err      error
	)
	if search := q.Get("search"); search != "" {
		profiles, err = s.profiles.Search(r.Context(), search)
	} else {
		profiles, err = s.profiles.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]api.Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, api.FromProfile(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromProfile(p))
}

func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := ownProfile(w, r)
	if !ok {
		return
	}
	var body api.ProfileUpdate
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	p, err := s.profiles.Update(r.Context(), username, domain.ProfilePatch{Email: body.Email, Password: body.Password})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromProfile(p))
}

func (s *Server) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := ownProfile(w, r)
	if !ok {
		return
	}
	if err := s.profiles.Delete(r.Context(), username); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownProfile rejects changes to anyone else's profile.
func ownProfile(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := chi.URLParam(r, "username")
	if username != CurrentUser(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return username, true
}
