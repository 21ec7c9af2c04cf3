package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/propagation"
)

// errNonFinite marks a computed position that cannot be represented in JSON.
var errNonFinite = errors.New("position is not finite")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownBody):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNoDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, orbit.ErrInvalidSamples):
		return http.StatusBadRequest
	case errors.Is(err, orbit.ErrNonConvergent),
		errors.Is(err, propagation.ErrUnknownParent),
		errors.Is(err, errNonFinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}
