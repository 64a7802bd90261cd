package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrConflict     = errors.New("remote: revision conflict")
	ErrUnauthorized = errors.New("remote: unauthorized")
)

// ConflictError is returned when a write was based on a stale revision.
type ConflictError struct {
	Path           string
	ServerRevision uint64
	ServerHash     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote: conflict on %s (server revision %d, hash %s)", e.Path, e.ServerRevision, e.ServerHash)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StatusError is a non 2xx response the backend has no better error for.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// IsRetryable reports whether err is a transient transport failure: rate
// limiting, a server side error, a timeout or a broken connection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrConflict) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
