package spotify

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/zmb3/spotify/v2"
)

// Sentinel errors.
var (
	// ErrFetchFailed matches every *FetchError.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrBatchTooLarge is returned when more than MaxAudioFeatureIDs are requested at once.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrMalformedEvent marks a feed item missing a required field.
	ErrMalformedEvent = errors.New("malformed event")
)

// FailureKind classifies why an outbound call failed.
type FailureKind string

const (
	// KindTimeout means the request exceeded its deadline.
	KindTimeout FailureKind = "timeout"
	// KindStatus means the API answered with a non-success status.
	KindStatus FailureKind = "http_status"
	// KindTransport covers connection and decoding failures.
	KindTransport FailureKind = "transport"
)

// FetchError is returned by every API call that fails.
type FetchError struct {
	Kind   FailureKind
	Status int // Set when Kind is KindStatus
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("spotify: http status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("spotify: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// IsTimeout reports whether err is a FetchError caused by a timeout.
func IsTimeout(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTimeout
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == KindStatus {
		return fe.Status
	}
	return 0
}

// classify wraps a transport or API error into a *FetchError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return &FetchError{Kind: KindStatus, Status: apiErr.Status, Err: err}
	}

	return &FetchError{Kind: KindTransport, Err: err}
}
