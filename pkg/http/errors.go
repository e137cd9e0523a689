package http

import (
	"fmt"
	"net/http"
)

const (
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeConflict    = "ERR_CONFLICT"
	CodeRateLimited = "ERR_RATE_LIMITED"
	CodeInternal    = "ERR_INTERNAL"
)

// AppError is an error that knows the HTTP status it maps to.
type AppError struct {
	Status  int
	Code    string
	Field   string
	Message string
	Err     error
}

// Fail builds an AppError.
func Fail(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// On names the request field at fault.
func (e *AppError) On(field string) *AppError {
	e.Field = field
	return e
}

// Cause attaches the underlying error. It is never written to the client.
func (e *AppError) Cause(err error) *AppError {
	e.Err = err
	return e
}

// Detail renders e for the response body.
func (e *AppError) Detail() ValidationError {
	return ValidationError{Code: e.Code, Field: e.Field, Message: e.Message}
}

func NotFound(format string, a ...interface{}) *AppError {
	return Fail(http.StatusNotFound, CodeNotFound, fmt.Sprintf(format, a...))
}

func Conflict(message string) *AppError {
	return Fail(http.StatusConflict, CodeConflict, message)
}

func TooManyRequests(message string) *AppError {
	return Fail(http.StatusTooManyRequests, CodeRateLimited, message)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return Fail(http.StatusInternalServerError, CodeInternal, "something went wrong").Cause(err)
}
