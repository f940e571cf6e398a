package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/attachments"
	"github.com/garnizeh/apptrack/internal/models"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 4 << 20

type AttachmentsHandler struct {
	svc *attachments.Service
}

func NewAttachmentsHandler(svc *attachments.Service) *AttachmentsHandler {
	return &AttachmentsHandler{svc: svc}
}

// Upload serves POST /v1/applications/{id}/attachments as multipart form
// data with a "file" part and an optional "document_type" field.
func (h *AttachmentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, apperr.BadRequest("expected multipart form data"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, apperr.NewValidation("file", "No file was submitted."))
		return
	}
	if err != nil {
		writeError(w, r, apperr.BadRequest("could not read the uploaded file"))
		return
	}
	defer file.Close()

	att, err := h.svc.Upload(r.Context(), actorFrom(r), mux.Vars(r)["id"], attachments.Upload{
		Name:         header.Filename,
		DocumentType: models.DocumentType(r.FormValue("document_type")),
		Content:      file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, att, http.StatusCreated)
}

func (h *AttachmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Attachment{}
	}
	writeJSON(w, items, http.StatusOK)
}

func (h *AttachmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	att, err := h.svc.Get(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, att, http.StatusOK)
}

// Download returns the metadata with the public URL of the file.
func (h *AttachmentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	dl, err := h.svc.Download(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, dl, http.StatusOK)
}

// Content streams the file itself.
func (h *AttachmentsHandler) Content(w http.ResponseWriter, r *http.Request) {
	att, rc, err := h.svc.Open(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", att.FileType)
	w.Header().Set("Content-Length", fmt.Sprint(att.FileSize))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("stream attachment", "attachment_id", att.ID, "err", err)
	}
}

func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actorFrom(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
