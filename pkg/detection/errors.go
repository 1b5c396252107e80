package detection

import (
	"errors"

	"github.com/teslashibe/go-facecam/pkg/vision"
)

var (
	// ErrNotReady is returned by Start when the resource is not loaded or
	// the session is not active.
	ErrNotReady = errors.New("detection: resource or session not ready")

	// ErrNoCanvas is returned by a tick when there is nothing to draw on.
	ErrNoCanvas = errors.New("detection: no rendering context")

	// ErrSessionEnded is returned by a tick whose session went away.
	ErrSessionEnded = errors.New("detection: session ended")
)

// describe turns a tick error into the line shown on the page.
func describe(err error) string {
	switch {
	case errors.Is(err, ErrNoCanvas):
		return "No rendering context available"
	case errors.Is(err, vision.ErrNotLoaded):
		return "Face detection library is not loaded"
	}
	return "Face detection failed: " + err.Error()
}
