package relay

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned to clients in the error envelope.
const (
	ErrInvalidRequestCode  = "invalid_request_error"
	ErrRequestTooLargeCode = "request_too_large"
	ErrUpstreamCode        = "upstream_error"
)

var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Error is a failure the relay answers itself instead of forwarding.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to the HTTP status sent to the client.
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrInvalidRequestCode:
		return http.StatusBadRequest
	case ErrRequestTooLargeCode:
		return http.StatusRequestEntityTooLarge
	case ErrUpstreamCode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WrapError builds an Error around err.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// respondWithError writes the OpenAI-style error envelope and aborts the
// handler chain.
func respondWithError(c *gin.Context, err *Error) {
	message := err.Message
	if err.Err != nil {
		message = fmt.Sprintf("%s: %v", err.Message, err.Err)
	}
	c.AbortWithStatusJSON(err.StatusCode(), gin.H{
		"error": gin.H{
			"message": message,
			"type":    err.Code,
			"code":    err.Code,
		},
	})
}
