package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrLookup is returned for an unknown target label or an unknown group.
	ErrLookup = errors.New("lookup failure")

	// ErrShardComputation is returned for a malformed shard-compute request.
	ErrShardComputation = errors.New("shard computation failure")

	// ErrTransport is returned when a peer is unreachable, resets the
	// connection, times out or answers with something unparsable.
	ErrTransport = errors.New("transport failure")

	// ErrEmptyGroup is returned by the coordinator when no worker is registered.
	ErrEmptyGroup = errors.New("empty group")

	// ErrInvalidArgument is returned for malformed requests that are not
	// shard computations, such as a join without a port.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StatusError is a non-2xx answer from a peer.
type StatusError struct {
	URL     string
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.Code)
	}
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.Code, e.Message)
}

// Unwrap maps the status code back onto the error taxonomy so callers can
// use errors.Is across process boundaries.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrLookup
	case http.StatusBadRequest:
		return ErrShardComputation
	case http.StatusServiceUnavailable:
		return ErrEmptyGroup
	default:
		return ErrTransport
	}
}

// StatusCode returns the HTTP status a handler should answer with for err.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrLookup):
		return http.StatusNotFound
	case errors.Is(err, ErrShardComputation), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyGroup):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
