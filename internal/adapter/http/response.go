package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Suggested *string           `json:"suggested_slot,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, message string, statusCode int, validationErrors []ValidationError) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:  message,
		Errors: validationErrors,
	})
}

// statusFor maps domain errors to HTTP codes; anything unknown is a storage
// or collaborator failure
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionAlreadyConfirmed),
		errors.Is(err, domain.ErrBusinessMismatch),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrAlreadyReleased),
		errors.Is(err, domain.ErrReleaseUnavailable),
		errors.Is(err, domain.ErrCapacityUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBusinessNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotNotOpen),
		errors.Is(err, domain.ErrEmptyOrder):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func respondDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if status == http.StatusServiceUnavailable {
		resp.Error = "Service temporarily unavailable"
	}

	var capErr *domain.CapacityUnavailableError
	if errors.As(err, &capErr) && capErr.Suggested != nil {
		s := capErr.Suggested.Start
		resp.Suggested = &s
	}
	respondJSON(w, status, resp)
}
