package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindNotFound  ErrorKind = "not_found"
	KindRejected  ErrorKind = "rejected"
	KindConflict  ErrorKind = "conflict"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// Error is a classified failure from a remote AI call.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return KindTransient
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsRejected(err error) bool {
	return KindOf(err) == KindRejected
}

func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// KindForStatus maps an HTTP status from a provider to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return KindTransient
	case code >= 400:
		return KindRejected
	default:
		return KindTransient
	}
}

func newError(op string, kind ErrorKind, code int, msg string, err error) *Error {
	return &Error{Op: op, Kind: kind, StatusCode: code, Message: msg, Err: err}
}

func transportError(op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return newError(op, KindTransient, 0, "request cancelled", err)
	}
	return newError(op, KindTransient, 0, "", err)
}
