package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"cms-service/internal/domain"
)

var (
	// ErrAborted matches every request that was cancelled before it settled.
	ErrAborted = errors.New("request aborted")
	// ErrFailed matches every request that reached a genuine failure.
	ErrFailed = errors.New("request failed")
	// ErrSuperseded is the cancellation cause of a request replaced by a newer one with the same key.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// RequestError is the classified failure returned by every dispatcher call.
type RequestError struct {
	Status     domain.RequestStatus
	Key        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status == domain.RequestStatusAborted:
		return fmt.Sprintf("%s: aborted: %v", e.Key, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Key, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrAborted:
		return e.Status == domain.RequestStatusAborted
	case ErrFailed:
		return e.Status == domain.RequestStatusFailed
	}
	return false
}

// HTTPStatusError is the cause of a FAILED classification for non-2xx responses.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.Code) }

// IsAborted reports whether err is a request cancelled before it settled.
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

// StatusCode returns the HTTP status of a FAILED request, or 0.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// cancellation returns the reason ctx was cancelled, or nil when it was not.
// Deadlines are failures, not cancellations.
func cancellation(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}
