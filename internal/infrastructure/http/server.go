package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cms-service/internal/api"
	"cms-service/internal/application"
	"cms-service/internal/domain"
	"cms-service/internal/infrastructure/config"
	"cms-service/internal/infrastructure/logx"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Services bundles the application services the handlers call into.
type Services struct {
	Posts    *application.PostService
	Media    *application.MediaService
	Auth     *application.AuthService
	Profiles *application.ProfileService
}

type Server struct {
	posts    *application.PostService
	media    *application.MediaService
	auth     *application.AuthService
	profiles *application.ProfileService

	ping        func(ctx context.Context) error
	corsOrigins []string
	maxUpload   int64
	validate    *validator.Validate
}

type Option func(*Server)

func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.corsOrigins = origins } }
func WithMaxUploadBytes(n int64) Option       { return func(s *Server) { s.maxUpload = n } }

func NewServer(svc Services, opts ...Option) *Server {
	s := &Server{
		posts:       svc.Posts,
		media:       svc.Media,
		auth:        svc.Auth,
		profiles:    svc.Profiles,
		corsOrigins: []string{"*"},
		maxUpload:   config.DefaultMaxUploadBytes,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReadyCheck installs the probe behind /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

var errEmptyBody = errors.New("empty body")

// decode reads a JSON body into v and runs its validate tags.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return s.validate.Struct(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Error{Code: status, Message: msg})
}

// writeBadInput reports a decode or validation failure as 400.
func writeBadInput(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs) && len(verrs) > 0:
		writeError(w, http.StatusBadRequest, "invalid field "+verrs[0].Field()+": "+verrs[0].Tag())
	case errors.Is(err, errEmptyBody):
		writeError(w, http.StatusBadRequest, "request body is required")
	default:
		writeError(w, http.StatusBadRequest, "invalid JSON body")
	}
}

// writeServiceError maps application sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, application.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrBadRequest), errors.Is(err, domain.ErrInvalidFileName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, application.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful can be written
		logx.WithFields(r.Context()).Info("http.request_cancelled", zap.String("path", r.URL.Path))
	default:
		logx.WithFields(r.Context()).Error("http.internal_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
