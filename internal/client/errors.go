package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps network failures and timeouts.
	ErrTransport = errors.New("transport failure")
	// ErrInvalidResponse marks a 2xx body that failed validation.
	ErrInvalidResponse = errors.New("invalid response")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsConflict(err error) bool { return StatusCode(err) == http.StatusConflict }

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }
