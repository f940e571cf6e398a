package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/reminders"
	"github.com/garnizeh/apptrack/pkg/repository"
)

type RemindersHandler struct {
	svc *reminders.Service
}

func NewRemindersHandler(svc *reminders.Service) *RemindersHandler {
	return &RemindersHandler{svc: svc}
}

// reminderID parses the {id} path variable. Malformed ids are reported as
// not found.
func reminderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrNotFound
	}
	return id, nil
}

func writeReminders(w http.ResponseWriter, items []models.Reminder) {
	if items == nil {
		items = []models.Reminder{}
	}
	writeJSON(w, items, http.StatusOK)
}

// List serves GET /v1/reminders with optional application, is_sent and
// channel filters.
func (h *RemindersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ReminderFilter{
		ApplicationID: q.Get("application"),
		Channel:       models.Channel(q.Get("channel")),
	}
	if s := q.Get("is_sent"); s != "" {
		sent, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, apperr.NewValidation("is_sent", "Must be a valid boolean."))
			return
		}
		f.IsSent = &sent
	}
	items, err := h.svc.List(r.Context(), actorFrom(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReminders(w, items)
}

func (h *RemindersHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Upcoming(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReminders(w, items)
}

// ListForApplication serves GET /v1/applications/{id}/reminders.
func (h *RemindersHandler) ListForApplication(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), actorFrom(r), repository.ReminderFilter{ApplicationID: mux.Vars(r)["id"]})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReminders(w, items)
}

// Create serves POST /v1/applications/{id}/reminders.
func (h *RemindersHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := reminders.DecodeCreate(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := h.svc.Create(r.Context(), actorFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, rm, http.StatusCreated)
}

func (h *RemindersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := reminderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := h.svc.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, rm, http.StatusOK)
}

func (h *RemindersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := reminderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := reminders.DecodeUpdate(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := h.svc.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, rm, http.StatusOK)
}

func (h *RemindersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := reminderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RemindersHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, err := reminderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rm, err := h.svc.Resend(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, rm, http.StatusOK)
}
