package mediasession

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned by platforms when access to a capability
	// was refused or revoked.
	ErrPermissionDenied = errors.New("mediasession: permission denied")
	// ErrDeviceUnavailable means the requested device does not exist (anymore).
	ErrDeviceUnavailable = errors.New("mediasession: requested device is unavailable")
	// ErrUserCancelled means the user dismissed a capture prompt. Callers
	// should treat it like ErrDeviceUnavailable.
	ErrUserCancelled = errors.New("mediasession: capture cancelled by user")
	// ErrUnsupported marks features the platform doesn't provide.
	ErrUnsupported = errors.New("mediasession: not supported on this platform")
	// ErrClosed is returned by components used after Close.
	ErrClosed = errors.New("mediasession: closed")
)

// AcquireError is returned by StreamSession.Acquire when the platform failed
// to produce a stream. The active stream is left untouched.
type AcquireError struct {
	Source SourceKind
	Err    error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("mediasession: failed to acquire %s stream: %v", e.Source, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// PlaybackError is returned when the display sink refused to start playback.
// The stream it refers to is installed regardless.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("mediasession: display sink refused playback: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err means the requested source could not be
// used, either because the device is gone or the user cancelled the prompt.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, ErrUserCancelled)
}
