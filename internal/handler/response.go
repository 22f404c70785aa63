package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripsync/internal/repository"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/store/repository errors to HTTP codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrNoActiveTrip):
		return http.StatusNotFound

	// Validation - Bad Request
	case errors.Is(err, service.ErrInvalidOrderID),
		errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest

	// Conflicts: the caller should refresh and retry rather than force it
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrTripAlreadyActive),
		errors.Is(err, store.ErrOrderLocked):
		return http.StatusConflict

	// Remote store unreachable or rejecting; retry-eligible
	case errors.Is(err, service.ErrSyncFailure),
		errors.Is(err, service.ErrFinishFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
