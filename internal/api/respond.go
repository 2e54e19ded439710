package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/SigNoz/storefront-go-app/internal/session"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps a service error kind to its status code. Storage and
// unexpected errors are logged in full and answered with a fixed message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s request_id=%s: %v", r.Method, r.URL.Path, middleware.RequestIDFrom(r.Context()), err)
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, services.ErrStorage):
		return http.StatusServiceUnavailable, ErrorResponse{"temporarily unable to process the request", "storage_error", true}
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{err.Error(), "validation_error", false}
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{err.Error(), "not_found", false}
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{err.Error(), "forbidden", false}
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrorResponse{err.Error(), "conflict", false}
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{err.Error(), "invalid_credentials", false}
	case errors.Is(err, services.ErrEmptyCart):
		return http.StatusBadRequest, ErrorResponse{err.Error(), "empty_cart", false}
	case errors.Is(err, session.ErrInvalidSession):
		return http.StatusUnauthorized, ErrorResponse{err.Error(), "unauthorized", false}
	default:
		return http.StatusInternalServerError, ErrorResponse{"internal server error", "internal_error", false}
	}
}

func invalidRequest(msg string) error {
	return fmt.Errorf("%w: %s", services.ErrValidation, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidRequest("request body must be valid JSON")
	}
	return nil
}

func pathID(r *http.Request, what string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidRequest(fmt.Sprintf("invalid %s ID", what))
	}
	return id, nil
}
