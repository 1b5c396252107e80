// Package viewer composes the capture session, the classifier resource
// and the detection loop into the page's single toggle.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/detection"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// Toggle labels.
const (
	LabelStart = "Start Video"
	LabelStop  = "Stop Video"
)

// Config wires a Viewer.
type Config struct {
	Source    capture.Source
	Surface   capture.Surface
	Canvas    detection.Canvas
	Resource  *vision.Resource
	Scheduler detection.Scheduler
	Params    *vision.Params

	// OnChange is called with the new status whenever something visible
	// changes. It must not call back into the Viewer's Toggle.
	OnChange func(Status)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Status is what the page renders.
type Status struct {
	Streaming      bool            `json:"streaming"`
	Label          string          `json:"label"`
	Error          string          `json:"error,omitempty"`
	DetectionReady bool            `json:"detection_ready"`
	Detection      string          `json:"detection"`
	Faces          int             `json:"faces"`
	Regions        []vision.Region `json:"regions,omitempty"`
}

// Viewer is the page controller. Toggles are serialized the way a
// single UI thread would serialize click handlers.
type Viewer struct {
	errs     *ErrorState
	session  *capture.Manager
	loop     *detection.Controller
	resource *vision.Resource
	onChange func(Status)
	log      *slog.Logger

	mu      sync.Mutex
	mounted bool

	// life bounds the detection loop; it ends on Unmount.
	life   context.Context
	cancel context.CancelFunc

	faces atomic.Int64
}

// New creates a Viewer. Nothing is acquired or loaded until Mount and
// Toggle are called.
func New(cfg Config) (*Viewer, error) {
	if cfg.Resource == nil {
		return nil, errors.New("viewer: resource required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	v := &Viewer{
		errs:     &ErrorState{},
		resource: cfg.Resource,
		onChange: cfg.OnChange,
		log:      cfg.Logger.With("component", "viewer"),
	}
	v.life, v.cancel = context.WithCancel(context.Background())

	session, err := capture.NewManager(capture.Config{
		Source:  cfg.Source,
		Surface: cfg.Surface,
		Errors:  v.errs,
		Metrics: cfg.Metrics,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	v.session = session

	loop, err := detection.New(detection.Config{
		Session:   session,
		Resource:  cfg.Resource,
		Scheduler: cfg.Scheduler,
		Canvas:    cfg.Canvas,
		Params:    cfg.Params,
		Errors:    v.errs,
		OnResult:  v.onResult,
		Metrics:   cfg.Metrics,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	v.loop = loop

	v.errs.notify(v.changed)
	return v, nil
}

// Mount starts the one-shot classifier load in the background. When the
// load finishes while a session is active, detection starts right away.
// Mounting twice does nothing.
func (v *Viewer) Mount(ctx context.Context) {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = true
	v.mu.Unlock()

	if v.resource.Ready() {
		return
	}

	go func() {
		err := v.resource.Load(ctx)

		v.mu.Lock()
		defer v.mu.Unlock()

		if err != nil {
			v.errs.SetError(fmt.Sprintf("Failed to load face detection library: %v", err))
			return
		}
		if v.session.Active() {
			v.startLoopLocked()
		}
		v.changed()
	}()
}

// Toggle starts the session when inactive and stops it when active.
// Starting blocks until the camera is granted or refused; ctx bounds
// that wait. Failures are also reported through the status error line.
func (v *Viewer) Toggle(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session.Active() {
		v.stopLocked()
		v.changed()
		return nil
	}

	if err := v.session.Start(ctx); err != nil {
		v.changed()
		return err
	}
	if v.resource.Ready() {
		v.startLoopLocked()
	}
	v.changed()
	return nil
}

func (v *Viewer) startLoopLocked() {
	if err := v.loop.Start(v.life); err != nil {
		v.log.Debug("detection not started", "error", err)
	}
}

// stopLocked tears down in reverse order of start.
func (v *Viewer) stopLocked() {
	v.loop.Stop()
	v.session.Stop()
	v.faces.Store(0)
}

// Unmount stops everything, as leaving the page would.
func (v *Viewer) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
	v.cancel()
}

// Label returns the toggle's current caption.
func (v *Viewer) Label() string {
	if v.session.Active() {
		return LabelStop
	}
	return LabelStart
}

// Errors exposes the page's error line.
func (v *Viewer) Errors() *ErrorState {
	return v.errs
}

// Session exposes the capture manager.
func (v *Viewer) Session() *capture.Manager {
	return v.session
}

// Detection exposes the detection loop.
func (v *Viewer) Detection() *detection.Controller {
	return v.loop
}

// Status returns a snapshot of everything the page shows.
func (v *Viewer) Status() Status {
	res := v.loop.LastResult()
	return Status{
		Streaming:      v.session.Active(),
		Label:          v.Label(),
		Error:          v.errs.Message(),
		DetectionReady: v.resource.Ready(),
		Detection:      v.loop.State().String(),
		Faces:          len(res.Regions),
		Regions:        res.Regions,
	}
}

func (v *Viewer) onResult(r detection.Result) {
	n := int64(len(r.Regions))
	if v.faces.Swap(n) != n {
		v.changed()
	}
}

func (v *Viewer) changed() {
	if v.onChange != nil {
		v.onChange(v.Status())
	}
}
