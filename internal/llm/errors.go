// ABOUTME: Error types and the transient/permanent classification for backends.
// ABOUTME: Transient failures are retried; permanent ones fail the turn immediately.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrBackendUnavailable is returned after every retry has been exhausted.
// Callers treat it as a failed turn, never a crash.
var ErrBackendUnavailable = errors.New("backend unavailable")

// ErrGenerateBusy is returned when Generate is called while another
// generation is still running. At most one request is in flight per gateway.
var ErrGenerateBusy = errors.New("generation already in flight")

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Transient reports whether an error is worth retrying: rate limits,
// server-side failures, timeouts, and network trouble. Client-side
// rejections (bad request, bad credentials) and a cancelled context are
// permanent.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// url.Error and the op errors under it all implement net.Error:
	// refused connections, resets, DNS trouble, timeouts.
	var ne net.Error
	return errors.As(err, &ne)
}
