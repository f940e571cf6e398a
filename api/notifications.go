package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/notifications"
)

type NotificationsHandler struct {
	svc *notifications.Service
}

func NewNotificationsHandler(svc *notifications.Service) *NotificationsHandler {
	return &NotificationsHandler{svc: svc}
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request, unreadOnly bool) {
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
	items, err := h.svc.List(r.Context(), actorFrom(r), unreadOnly, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, items, http.StatusOK)
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *NotificationsHandler) Unread(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, n, http.StatusOK)
}
