package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hordebroker/broker/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain sentinel to the status/body pair of spec §7.
// Error bodies are plain strings, not a JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicate):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrNoEligible):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrExpired):
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
