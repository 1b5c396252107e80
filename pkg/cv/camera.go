// Package cv implements the capture and vision interfaces on top of
// OpenCV through gocv.
package cv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// CameraConfig selects and sizes the local camera.
type CameraConfig struct {
	Device int
	Width  int
	Height int
	Logger *slog.Logger
}

// Camera is a capture.Source backed by a local V4L2/AVFoundation device.
type Camera struct {
	cfg   CameraConfig
	log   *slog.Logger
	probe func(device int) error
}

// NewCamera creates a Camera. No device is opened until Acquire.
func NewCamera(cfg CameraConfig) *Camera {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Camera{
		cfg:   cfg,
		log:   cfg.Logger.With("component", "camera", "device", cfg.Device),
		probe: probeDevice,
	}
}

type openResult struct {
	vc  *gocv.VideoCapture
	err error
}

// Acquire opens the device and starts grabbing frames. Only video-only
// constraints are supported.
func (c *Camera) Acquire(ctx context.Context, want capture.Constraints) (capture.Stream, error) {
	if !want.Video || want.Audio {
		return nil, capture.ErrUnsupported
	}
	if err := c.probe(c.cfg.Device); err != nil {
		return nil, err
	}

	// Opening a device can block for seconds; do it off the caller's
	// goroutine so ctx can abandon it.
	res := make(chan openResult, 1)
	go func() {
		vc, err := gocv.OpenVideoCapture(c.cfg.Device)
		res <- openResult{vc: vc, err: err}
	}()

	var r openResult
	select {
	case r = <-res:
	case <-ctx.Done():
		go func() {
			if late := <-res; late.vc != nil {
				late.vc.Close()
			}
		}()
		return nil, ctx.Err()
	}

	if r.err != nil || r.vc == nil || !r.vc.IsOpened() {
		if r.vc != nil {
			r.vc.Close()
		}
		return nil, fmt.Errorf("open device %d: %w", c.cfg.Device, capture.ErrDeviceBusy)
	}

	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		r.vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		r.vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}

	s := newStream(r.vc, c.log)
	c.log.Info("camera opened", "stream", s.ID())
	return s, nil
}

// Stream is a live camera stream. A background goroutine keeps the most
// recent frame so readers never block on the device.
type Stream struct {
	id  string
	vc  *gocv.VideoCapture
	log *slog.Logger

	mu      sync.Mutex
	latest  gocv.Mat
	stopped bool

	stop     chan struct{}
	grabbed  chan struct{}
	stopOnce sync.Once
	track    *videoTrack
}

func newStream(vc *gocv.VideoCapture, logger *slog.Logger) *Stream {
	s := &Stream{
		id:      uuid.NewString(),
		vc:      vc,
		log:     logger,
		latest:  gocv.NewMat(),
		stop:    make(chan struct{}),
		grabbed: make(chan struct{}),
	}
	s.track = &videoTrack{stream: s}
	go s.grab()
	return s
}

// ID implements capture.Stream.
func (s *Stream) ID() string { return s.id }

// Tracks implements capture.Stream.
func (s *Stream) Tracks() []capture.Track {
	return []capture.Track{s.track}
}

func (s *Stream) grab() {
	defer close(s.grabbed)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.vc.Read(&frame); !ok || frame.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		frame.CopyTo(&s.latest)
		s.mu.Unlock()
	}
}

// Snapshot copies the most recent frame into dst.
func (s *Stream) Snapshot(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("stream %s: %w", s.id, capture.ErrNoDevice)
	}
	if s.latest.Empty() {
		return vision.ErrEmptyFrame
	}
	s.latest.CopyTo(dst)
	return nil
}

func (s *Stream) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.grabbed

		s.mu.Lock()
		s.stopped = true
		s.latest.Close()
		s.mu.Unlock()

		if err := s.vc.Close(); err != nil {
			s.log.Warn("camera close failed", "stream", s.id, "error", err)
			return
		}
		s.log.Info("camera released", "stream", s.id)
	})
}

type videoTrack struct {
	stream *Stream
}

func (t *videoTrack) Kind() string { return "video" }

func (t *videoTrack) Stop() { t.stream.close() }
