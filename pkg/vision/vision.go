// Package vision defines the boundary to the computer-vision library used
// for face detection and the process-wide classifier resource.
//
// The library itself is injected: pkg/cv implements Library on top of
// gocv, tests use MockLibrary.
package vision

import (
	"fmt"
	"image"

	"github.com/teslashibe/go-facecam/pkg/capture"
)

// Region is a detected area in source-frame pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFromRect converts an image.Rectangle.
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// LabelOrigin is where a label for r is drawn: just above the box, or
// inside it when the box touches the top edge.
func (r Region) LabelOrigin() image.Point {
	if r.Y >= 12 {
		return image.Pt(r.X, r.Y-6)
	}
	return image.Pt(r.X, r.Y+14)
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", r.Width, r.Height, r.X, r.Y)
}

// Params are the multi-scale detection parameters.
// A zero MinSize or MaxSize means no constraint.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	Flags        int
	MinSize      image.Point
	MaxSize      image.Point
}

// DefaultParams returns the parameters the detection loop uses.
func DefaultParams() Params {
	return Params{
		ScaleFactor:  1.1,
		MinNeighbors: 3,
		Flags:        0,
	}
}

// Buffer is a native-backed image owned by the caller. Every buffer
// returned by a Library must be closed exactly once.
type Buffer interface {
	Size() (width, height int)
	Close() error
}

// Classifier is a loaded pre-trained detector.
type Classifier interface {
	DetectMultiScale(gray Buffer, p Params) ([]Region, error)
	Close() error
}

// Library is the computer-vision toolkit the detection loop drives.
type Library interface {
	// Capture copies the stream's current frame into a new buffer.
	Capture(s capture.Stream) (Buffer, error)

	// Grayscale returns a single-channel copy of src.
	Grayscale(src Buffer) (Buffer, error)

	// LoadClassifier loads a classifier from a local file.
	LoadClassifier(path string) (Classifier, error)

	// Draw outlines r on dst and writes label next to it.
	Draw(dst Buffer, r Region, label string) error

	// Render encodes b for display.
	Render(b Buffer) ([]byte, error)
}
