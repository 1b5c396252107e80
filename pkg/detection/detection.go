// Package detection runs the per-frame face detection loop over an
// active capture session.
//
// The loop is a two-state machine (Idle, Running). It only enters
// Running when the classifier resource is ready and the session is
// active, and it returns to Idle on its own as soon as the session ends.
package detection

import (
	"context"
	"time"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// State of the loop.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// DefaultLabel is drawn next to every detected region.
const DefaultLabel = "Face"

// Session is the view of the capture session the loop needs.
type Session interface {
	Active() bool
	Stream() capture.Stream
}

// Resource is the view of the classifier resource the loop needs.
type Resource interface {
	Ready() bool
	Library() (vision.Library, error)
	Classifier() (vision.Classifier, error)
}

// Canvas receives rendered, annotated frames.
type Canvas interface {
	Paint(frame []byte) error
}

// Scheduler paces the loop. Next blocks until the next frame boundary
// or until ctx is done.
type Scheduler interface {
	Next(ctx context.Context) error
}

// Result is what one tick produced.
type Result struct {
	Regions []vision.Region `json:"regions"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	At      time.Time       `json:"at"`
}
