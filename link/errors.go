package link

import (
	"github.com/pkg/errors"
)

// ErrCapabilityAbsent is returned by Connect when the host has no usable transport at all, for
// example no Bluetooth adapter. It is reported to the user before any connection attempt.
var ErrCapabilityAbsent = errors.New("transport is not supported on this host")

// ErrNotConnected is the reason recorded when a payload is skipped because the link is not
// connected. Send never returns it.
var ErrNotConnected = errors.New("link is not connected")

// ErrClosed is returned by Connect after the link has been closed.
var ErrClosed = errors.New("link is closed")

// A ConnectionFailedError is returned by Connect when discovery, pairing, or opening the
// device failed. The link is back in the Disconnected state and may be retried.
type ConnectionFailedError struct {
	Reason error
}

// NewConnectionFailedError wraps reason as a ConnectionFailedError.
func NewConnectionFailedError(reason error) error {
	return &ConnectionFailedError{Reason: reason}
}

func (e *ConnectionFailedError) Error() string {
	if e.Reason == nil {
		return "connection failed"
	}
	return "connection failed: " + e.Reason.Error()
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Reason
}

// IsConnectionFailed reports whether err is or wraps a ConnectionFailedError.
func IsConnectionFailed(err error) bool {
	var cf *ConnectionFailedError
	return errors.As(err, &cf)
}
