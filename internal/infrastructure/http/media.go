package httpserver

import (
	"errors"
	"mime/multipart"
	"net/http"

	"cms-service/internal/api"
	"cms-service/internal/application"
	"cms-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (s *Server) ListImages(w http.ResponseWriter, r *http.Request) {
	imgs, err := s.media.ListImages(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]api.Image, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, api.FromImage(img))
	}
	writeJSON(w, http.StatusOK, out)
}

// UploadImage accepts a multipart form with a "file" part and an optional
// "post_id" field.
func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	up, postID, closeFn, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer closeFn()
	img, err := s.media.UploadImage(r.Context(), up, postID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromImage(img))
}

func (s *Server) UpdateImage(w http.ResponseWriter, r *http.Request) {
	var body api.MediaUpdate
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	img, err := s.media.UpdateImage(r.Context(), chi.URLParam(r, "id"), domain.MediaPatch{Title: body.Title, Alt: body.Alt})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromImage(img))
}

func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.media.DeleteImage(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments lists every document, or with ?available_for=<post id> only
// those not yet attached to that post.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var (
		docs []domain.Document
		err  error
	)
	if postID := r.URL.Query().Get("available_for"); postID != "" {
		docs, err = s.media.AvailableDocuments(r.Context(), postID)
	} else {
		docs, err = s.media.ListDocuments(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]api.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, api.FromDocument(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	up, postID, closeFn, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer closeFn()
	doc, err := s.media.UploadDocument(r.Context(), up, postID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromDocument(doc))
}

func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body api.MediaUpdate
	if err := s.decode(r, &body); err != nil {
		writeBadInput(w, err)
		return
	}
	doc, err := s.media.UpdateDocument(r.Context(), chi.URLParam(r, "id"), domain.MediaPatch{Title: body.Title})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromDocument(doc))
}

func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.media.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload parses the multipart body. On failure it has already written the
// response and ok is false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (up application.Upload, postID *string, closeFn func(), ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return up, nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "multipart form expected")
		return up, nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return up, nil, nil, false
	}
	if id := r.FormValue("post_id"); id != "" {
		postID = &id
	}
	return application.Upload{
		Name:        header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
		Body:        file,
	}, postID, func() { file.Close(); r.MultipartForm.RemoveAll() }, true
}

func contentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
