package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/storage"
)

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, certificate.ErrEmptyRequiredField),
		errors.Is(err, certificate.ErrInvalidExpiry),
		errors.Is(err, certificate.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, certificate.ErrTemplateNotFound),
		errors.Is(err, certificate.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, certificate.ErrInactive),
		errors.Is(err, certificate.ErrExpired):
		return http.StatusGone
	case errors.Is(err, certificate.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, certificate.ErrDuplicateIdentifier):
		return http.StatusConflict
	case errors.Is(err, certificate.ErrExportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// failureReason is the metric and audit label for a failed issuance.
func failureReason(err error) string {
	switch {
	case errors.Is(err, certificate.ErrEmptyRequiredField):
		return "empty_required_field"
	case errors.Is(err, certificate.ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, certificate.ErrInvalidExpiry):
		return "invalid_expiry"
	case errors.Is(err, certificate.ErrDuplicateIdentifier):
		return "duplicate_identifier"
	case errors.Is(err, errBadRequest):
		return "bad_request"
	default:
		return "internal"
	}
}
