package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/detection"
	"github.com/teslashibe/go-facecam/pkg/hub"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// ErrNoStream is returned when binding a nil stream.
var ErrNoStream = errors.New("web: no stream to bind")

// Snapshotter encodes the current frame of a stream.
type Snapshotter interface {
	Snapshot(s capture.Stream) ([]byte, error)
}

// Preview is the video surface. While a stream is bound it pushes
// unannotated frames to the video hub, skipping the encode when nobody
// is watching.
type Preview struct {
	hub      *hub.Hub
	snap     Snapshotter
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPreview creates a Preview that samples at the given interval.
func NewPreview(h *hub.Hub, snap Snapshotter, interval time.Duration, logger *slog.Logger) *Preview {
	if interval <= 0 {
		interval = time.Second / 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preview{
		hub:      h,
		snap:     snap,
		interval: interval,
		log:      logger.With("component", "preview"),
	}
}

// Bind implements capture.Surface. A previously bound stream is
// replaced.
func (p *Preview) Bind(s capture.Stream) error {
	if s == nil {
		return ErrNoStream
	}
	p.Unbind()

	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.pump(ctx, s, p.done)
	p.log.Debug("preview bound", "stream", s.ID())
	return nil
}

// Unbind implements capture.Surface. It waits for the pump to exit so
// no frame is read after the tracks are stopped.
func (p *Preview) Unbind() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Bound reports whether a stream is bound.
func (p *Preview) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Preview) pump(ctx context.Context, s capture.Stream, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.hub.ClientCount() == 0 {
			continue
		}
		frame, err := p.snap.Snapshot(s)
		switch {
		case err == nil:
			p.hub.BroadcastBinary(frame)
		case errors.Is(err, vision.ErrEmptyFrame):
		default:
			p.log.Debug("preview frame failed", "error", err)
		}
	}
}

// Canvas is the detection loop's drawing surface. Painted frames go to
// the canvas hub.
type Canvas struct {
	hub *hub.Hub
}

// NewCanvas creates a Canvas that paints to h.
func NewCanvas(h *hub.Hub) *Canvas {
	return &Canvas{hub: h}
}

// Paint implements detection.Canvas.
func (c *Canvas) Paint(frame []byte) error {
	if len(frame) == 0 {
		return vision.ErrEmptyFrame
	}
	c.hub.BroadcastBinary(frame)
	return nil
}

var (
	_ capture.Surface  = (*Preview)(nil)
	_ detection.Canvas = (*Canvas)(nil)
)
