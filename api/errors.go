package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/apptrack/internal/apperr"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

// writeError maps service errors onto status codes. Anything outside the
// apperr taxonomy is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, ve.Fields, http.StatusBadRequest)
	case errors.Is(err, apperr.ErrBadRequest):
		writeJSON(w, errorResponse{Detail: err.Error()}, http.StatusBadRequest)
	case errors.Is(err, apperr.ErrUnauthenticated):
		writeJSON(w, errorResponse{Detail: "Authentication credentials were not provided."}, http.StatusUnauthorized)
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, errorResponse{Detail: "You do not have permission to perform this action."}, http.StatusForbidden)
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, errorResponse{Detail: "Not found."}, http.StatusNotFound)
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, errorResponse{Detail: err.Error()}, http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, errorResponse{Detail: "Request timed out."}, http.StatusServiceUnavailable)
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		writeJSON(w, errorResponse{Detail: "Internal server error."}, http.StatusInternalServerError)
	}
}

// readBody returns the raw request body, capped at maxBodyBytes.
func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperr.BadRequest("could not read request body")
	}
	if len(b) > maxBodyBytes {
		return nil, apperr.BadRequest("request body too large")
	}
	return b, nil
}

func decodeJSON(r *http.Request, v any) error {
	b, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return apperr.BadRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
