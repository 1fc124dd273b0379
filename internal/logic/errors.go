package logic

import (
	"fmt"
	"net/http"
)

// StatusError carries the HTTP status a handler should answer with.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string { return e.Msg }

func newStatusError(code int, format string, args ...any) error {
	return &StatusError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return newStatusError(http.StatusNotFound, format, args...)
}

func badRequest(format string, args ...any) error {
	return newStatusError(http.StatusBadRequest, format, args...)
}
