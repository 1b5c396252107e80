package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-facecam/pkg/metrics"
)

// Config wires a Manager to its collaborators.
type Config struct {
	Source  Source
	Surface Surface

	// Errors receives user-visible failures. Optional.
	Errors ErrorReporter

	// Metrics is optional; a private instance is used when nil.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// Manager owns the single capture session of the page.
type Manager struct {
	source  Source
	surface Surface
	errs    ErrorReporter
	metrics *metrics.Metrics
	log     *slog.Logger

	// op serializes Start and Stop so at most one session exists.
	op sync.Mutex

	mu     sync.RWMutex
	stream Stream
	active bool
}

// NewManager creates a Manager. Source and Surface are required.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, errors.New("capture: source required")
	}
	if cfg.Surface == nil {
		return nil, errors.New("capture: surface required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		source:  cfg.Source,
		surface: cfg.Surface,
		errs:    cfg.Errors,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("component", "capture"),
	}, nil
}

// Start acquires a video-only stream and binds it to the surface.
// A session that is already active is stopped first. On failure the
// error is reported and the manager stays inactive.
func (m *Manager) Start(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if m.Active() {
		m.stopLocked()
	}

	m.log.Debug("requesting camera", "video", VideoOnly.Video, "audio", VideoOnly.Audio)
	stream, err := m.source.Acquire(ctx, VideoOnly)
	if err == nil && stream == nil {
		err = ErrNoDevice
	}
	if err != nil {
		m.fail(err)
		return fmt.Errorf("acquire: %w", err)
	}

	if err := m.surface.Bind(stream); err != nil {
		StopAll(stream)
		m.fail(err)
		return fmt.Errorf("bind surface: %w", err)
	}

	m.mu.Lock()
	m.stream = stream
	m.active = true
	m.mu.Unlock()

	m.metrics.SessionsStarted.Add(1)
	metrics.SetFlag(&m.metrics.SessionActive, true)
	if m.errs != nil {
		m.errs.ClearError()
	}
	m.log.Info("capture started", "stream", stream.ID(), "tracks", len(stream.Tracks()))
	return nil
}

func (m *Manager) fail(err error) {
	m.metrics.AcquireFailures.Add(1)
	msg := Describe(err)
	m.log.Warn("capture failed", "error", err, "message", msg)
	if m.errs != nil {
		m.errs.SetError(msg)
	}
}

// Stop releases every track of the current stream and unbinds the
// surface. Calling Stop while inactive does nothing.
func (m *Manager) Stop() {
	m.op.Lock()
	defer m.op.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	m.mu.Lock()
	stream, active := m.stream, m.active
	m.stream = nil
	m.active = false
	m.mu.Unlock()

	if !active {
		return
	}

	StopAll(stream)
	m.surface.Unbind()

	m.metrics.SessionsStopped.Add(1)
	metrics.SetFlag(&m.metrics.SessionActive, false)
	m.log.Info("capture stopped", "stream", stream.ID())
}

// Active reports whether a session is currently bound.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Stream returns the active stream, or nil when inactive.
func (m *Manager) Stream() Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stream
}
