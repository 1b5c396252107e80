package capture

import (
	"context"
	"errors"
)

// Sentinel errors for acquisition failures. Sources wrap these so the
// manager can turn them into user-facing text.
var (
	// ErrPermissionDenied is returned when the host refuses camera access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrNoDevice is returned when no camera matches the constraints.
	ErrNoDevice = errors.New("capture: no device")

	// ErrDeviceBusy is returned when the camera exists but cannot be opened.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrUnsupported is returned for constraint sets a source cannot serve.
	ErrUnsupported = errors.New("capture: unsupported constraints")
)

// FallbackMessage is shown when an error carries no usable text.
const FallbackMessage = "Failed to access camera"

// Describe turns an acquisition error into the line shown on the page.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied"
	case errors.Is(err, ErrNoDevice):
		return "Requested device not found"
	case errors.Is(err, ErrDeviceBusy):
		return "Could not start video source"
	case errors.Is(err, ErrUnsupported):
		return "Requested media is not supported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Camera request was cancelled"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackMessage
}
