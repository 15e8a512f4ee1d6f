package api

import (
	"errors"
	"net/http"

	"github.com/siftdata/sift/internal/concept"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/query"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/signal"
	"github.com/siftdata/sift/internal/task"
	"github.com/siftdata/sift/pkg/objectstore"
)

// APIError represents an error with an associated HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// Common error constructors

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, message)
}

// ErrUnauthorized returns a 401 Unauthorized error.
func ErrUnauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, message)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, message)
}

// ErrConflict returns a 409 Conflict error.
func ErrConflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, message)
}

// ErrUnprocessable returns a 422 Unprocessable Entity error.
func ErrUnprocessable(message string) *APIError {
	return NewAPIError(http.StatusUnprocessableEntity, message)
}

// ErrPayloadTooLarge returns a 413 Payload Too Large error.
func ErrPayloadTooLarge(message string) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, message)
}

// ErrInternalServer returns a 500 Internal Server Error.
func ErrInternalServer(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message)
}

// ErrServiceUnavailable returns a 503 Service Unavailable error.
func ErrServiceUnavailable(message string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, message)
}

// ErrInvalidJSON returns a 400 error for invalid JSON.
func ErrInvalidJSON() *APIError {
	return ErrBadRequest("invalid JSON in request body")
}

// ErrDatasetNotFound returns a 404 error for a missing dataset.
func ErrDatasetNotFound(name string) *APIError {
	return ErrNotFound("dataset '" + name + "' not found")
}

// mapError translates a domain error into its API representation. Unknown
// errors become 500s with the message preserved.
func mapError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, query.ErrValidation),
		errors.Is(err, dataset.ErrInvalidName),
		errors.Is(err, dataset.ErrEmptySource),
		errors.Is(err, signal.ErrBadConfig),
		errors.Is(err, signal.ErrInvalidInput),
		errors.Is(err, concept.ErrNoExamples),
		errors.Is(err, dataset.ErrNotSignalRoot),
		errors.Is(err, schema.ErrInvalidPath):
		return ErrBadRequest(err.Error())
	case errors.Is(err, schema.ErrSchemaConflict):
		return ErrConflict(err.Error())
	case errors.Is(err, dataset.ErrAlreadyExists),
		errors.Is(err, concept.ErrAlreadyExists),
		errors.Is(err, dataset.ErrComputeInFlight):
		return ErrConflict(err.Error())
	case errors.Is(err, dataset.ErrEmbeddingNotComputed):
		return ErrUnprocessable(err.Error())
	case errors.Is(err, dataset.ErrNotFound),
		errors.Is(err, signal.ErrNotFound),
		errors.Is(err, concept.ErrNotFound),
		errors.Is(err, embedding.ErrNotFound),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, schema.ErrFieldNotFound):
		return ErrNotFound(err.Error())
	case errors.Is(err, objectstore.ErrNotFound):
		return ErrNotFound(err.Error())
	default:
		return ErrInternalServer(err.Error())
	}
}

// MaxRequestBodySize is the maximum allowed request body size (256MB).
const MaxRequestBodySize = 256 * 1024 * 1024
