package cv

import (
	"fmt"
	"image/color"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// FrameSource is implemented by streams that can hand out their current
// frame as a Mat.
type FrameSource interface {
	Snapshot(dst *gocv.Mat) error
}

// Frame is a vision.Buffer holding a gocv.Mat.
type Frame struct {
	mat    gocv.Mat
	closed bool
}

// NewFrame wraps m. The Frame takes ownership of m.
func NewFrame(m gocv.Mat) *Frame {
	return &Frame{mat: m}
}

// Size returns the frame width and height.
func (f *Frame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

// Mat exposes the underlying matrix.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Close releases the native memory. Closing twice is a no-op.
func (f *Frame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.mat.Close()
}

// Library implements vision.Library with gocv.
type Library struct {
	quality int
	box     color.RGBA
	text    color.RGBA
}

// NewLibrary creates a Library that renders JPEGs at the given quality.
func NewLibrary(jpegQuality int) *Library {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 80
	}
	return &Library{
		quality: jpegQuality,
		box:     color.RGBA{R: 255, A: 255},
		text:    color.RGBA{R: 255, A: 255},
	}
}

func asFrame(b vision.Buffer) (*Frame, error) {
	f, ok := b.(*Frame)
	if !ok || f == nil || f.closed {
		return nil, vision.ErrForeignBuffer
	}
	return f, nil
}

// Capture implements vision.Library.
func (l *Library) Capture(s capture.Stream) (vision.Buffer, error) {
	src, ok := s.(FrameSource)
	if !ok {
		return nil, fmt.Errorf("stream %T cannot provide frames: %w", s, vision.ErrForeignBuffer)
	}
	m := gocv.NewMat()
	if err := src.Snapshot(&m); err != nil {
		m.Close()
		return nil, err
	}
	return NewFrame(m), nil
}

// Grayscale implements vision.Library.
func (l *Library) Grayscale(src vision.Buffer) (vision.Buffer, error) {
	f, err := asFrame(src)
	if err != nil {
		return nil, err
	}
	gray := gocv.NewMat()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)
	if gray.Empty() {
		gray.Close()
		return nil, vision.ErrEmptyFrame
	}
	return NewFrame(gray), nil
}

// LoadClassifier implements vision.Library.
func (l *Library) LoadClassifier(path string) (vision.Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", vision.ErrClassifierNotFound, path)
	}
	cc := gocv.NewCascadeClassifier()
	if !cc.Load(path) {
		cc.Close()
		return nil, fmt.Errorf("%w: %s", vision.ErrInvalidClassifier, path)
	}
	return &Cascade{cc: cc}, nil
}

// Draw implements vision.Library.
func (l *Library) Draw(dst vision.Buffer, r vision.Region, label string) error {
	f, err := asFrame(dst)
	if err != nil {
		return err
	}
	gocv.Rectangle(&f.mat, r.Rect(), l.box, 2)
	if label != "" {
		gocv.PutText(&f.mat, label, r.LabelOrigin(), gocv.FontHersheySimplex, 0.5, l.text, 1)
	}
	return nil
}

// Render implements vision.Library.
func (l *Library) Render(b vision.Buffer) ([]byte, error) {
	f, err := asFrame(b)
	if err != nil {
		return nil, err
	}
	if f.mat.Empty() {
		return nil, vision.ErrEmptyFrame
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, f.mat, []int{gocv.IMWriteJpegQuality, l.quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Snapshot renders the stream's current frame without annotations.
// pkg/web uses it for the live preview.
func (l *Library) Snapshot(s capture.Stream) ([]byte, error) {
	frame, err := l.Capture(s)
	if err != nil {
		return nil, err
	}
	defer frame.Close()
	return l.Render(frame)
}

// Cascade is a vision.Classifier backed by an OpenCV Haar cascade.
type Cascade struct {
	mu sync.Mutex
	cc gocv.CascadeClassifier
}

// DetectMultiScale implements vision.Classifier.
func (c *Cascade) DetectMultiScale(gray vision.Buffer, p vision.Params) ([]vision.Region, error) {
	f, err := asFrame(gray)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rects := c.cc.DetectMultiScaleWithParams(f.mat, p.ScaleFactor, p.MinNeighbors, p.Flags, p.MinSize, p.MaxSize)
	regions := make([]vision.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, vision.RegionFromRect(r))
	}
	return regions, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.Close()
}

var _ vision.Library = (*Library)(nil)
var _ vision.Classifier = (*Cascade)(nil)
var _ capture.Source = (*Camera)(nil)
