package api

import (
	"net/http"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// AdminHandler serves operational endpoints restricted to staff.
type AdminHandler struct {
	queue repository.JobQueue
}

func NewAdminHandler(queue repository.JobQueue) *AdminHandler {
	return &AdminHandler{queue: queue}
}

// DeadLetters lists jobs that exhausted their retries or failed permanently.
func (h *AdminHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	if !actor.IsStaff {
		writeError(w, r, apperr.ErrForbidden)
		return
	}
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
	items, err := h.queue.ListDeadLetters(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.DeadLetterJob{}
	}
	writeJSON(w, items, http.StatusOK)
}
