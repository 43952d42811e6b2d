package httpapi

import (
	"errors"
	"net/http"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/pkg/grid"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

var (
	// ErrNotFound is returned for unknown routes when no static directory is served.
	ErrNotFound = &ErrorResponse{StatusCode: http.StatusNotFound, Message: "not found"}

	// ErrInternalError hides server-side failures from clients.
	ErrInternalError = &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: "internal error"}

	errStorage     = &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: "storage unavailable"}
	errRateLimit   = &ErrorResponse{StatusCode: http.StatusServiceUnavailable, Message: "rate limit store unavailable"}
	errProvider    = &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: "failed to fetch track details"}
	errCredentials = &ErrorResponse{StatusCode: http.StatusServiceUnavailable, Message: "Spotify access token not available"}
)

// toErrorResponse maps a service error onto a status code and client message.
// Only validation and cooldown messages are passed through verbatim.
func toErrorResponse(err error) *ErrorResponse {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}

	var denied *grid.AdmissionDeniedError
	var invalid *grid.ValidationError
	switch {
	case errors.As(err, &denied):
		return &ErrorResponse{StatusCode: http.StatusTooManyRequests, Message: denied.Error()}
	case errors.As(err, &invalid):
		return &ErrorResponse{StatusCode: http.StatusBadRequest, Message: invalid.Reason}
	case errors.Is(err, grid.ErrValidation):
		return &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "invalid request"}
	case errors.Is(err, grid.ErrStoreUnavailable) && admission.Error.Has(err):
		return errRateLimit
	case errors.Is(err, grid.ErrStoreUnavailable):
		return errStorage
	case errors.Is(err, grid.ErrCredentialUnavailable):
		return errCredentials
	case errors.Is(err, grid.ErrProvider):
		return errProvider
	default:
		return ErrInternalError
	}
}
