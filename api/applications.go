package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/apptrack/internal/applications"
	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

type ApplicationsHandler struct {
	svc *applications.Service
}

func NewApplicationsHandler(svc *applications.Service) *ApplicationsHandler {
	return &ApplicationsHandler{svc: svc}
}

type listResponse[T any] struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Items  []T   `json:"items"`
}

type statusResponse struct {
	Application *models.Application        `json:"application"`
	Change      *models.StatusHistoryEntry `json:"change"`
}

// queryInt reads a non negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, apperr.NewValidation(name, "A valid non-negative integer is required.")
	}
	return v, nil
}

func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := repository.ApplicationFilter{
		Status:  models.Status(q.Get("status")),
		Kind:    models.Kind(q.Get("kind")),
		Search:  q.Get("search"),
		OrderBy: q.Get("ordering"),
		Limit:   min(limit, applications.MaxListLimit),
		Offset:  offset,
	}
	if f.Limit == 0 {
		f.Limit = applications.DefaultListLimit
	}

	items, total, err := h.svc.List(r.Context(), actorFrom(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Application{}
	}
	writeJSON(w, listResponse[models.Application]{Total: total, Limit: f.Limit, Offset: f.Offset, Items: items}, http.StatusOK)
}

func (h *ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := applications.DecodeCreate(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	app, err := h.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, app, http.StatusCreated)
}

func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Get(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, app, http.StatusOK)
}

func (h *ApplicationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := applications.DecodeUpdate(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	app, err := h.svc.Update(r.Context(), actorFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, app, http.StatusOK)
}

func (h *ApplicationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actorFrom(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus changes the status and returns the recorded change, which is
// null when the status was already the requested one.
func (h *ApplicationsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := applications.DecodeStatus(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	app, change, err := h.svc.UpdateStatus(r.Context(), actorFrom(r), mux.Vars(r)["id"], in.Status, in.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, statusResponse{Application: app, Change: change}, http.StatusOK)
}

func (h *ApplicationsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Timeline(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.StatusHistoryEntry{}
	}
	writeJSON(w, entries, http.StatusOK)
}
