package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

// Config wires a Controller.
type Config struct {
	Session   Session
	Resource  Resource
	Scheduler Scheduler

	// Canvas may be nil; ticks then fail with ErrNoCanvas.
	Canvas Canvas

	// Params default to vision.DefaultParams().
	Params *vision.Params

	// Label defaults to DefaultLabel.
	Label string

	// Errors receives user-visible failures. Optional.
	Errors capture.ErrorReporter

	// OnResult is called after every successful tick. Optional.
	OnResult func(Result)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Controller runs the detection loop.
type Controller struct {
	session  Session
	resource Resource
	sched    Scheduler
	canvas   Canvas
	params   vision.Params
	label    string
	errs     capture.ErrorReporter
	onResult func(Result)
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	last   Result
}

// New creates an idle Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Session == nil {
		return nil, errors.New("detection: session required")
	}
	if cfg.Resource == nil {
		return nil, errors.New("detection: resource required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("detection: scheduler required")
	}
	params := vision.DefaultParams()
	if cfg.Params != nil {
		params = *cfg.Params
	}
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		session:  cfg.Session,
		resource: cfg.Resource,
		sched:    cfg.Scheduler,
		canvas:   cfg.Canvas,
		params:   params,
		label:    cfg.Label,
		errs:     cfg.Errors,
		onResult: cfg.OnResult,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With("component", "detection"),
	}, nil
}

// Start moves the loop to Running. It requires a ready resource and an
// active session and returns ErrNotReady otherwise. Starting a running
// loop does nothing. The loop lives until ctx is done, Stop is called or
// the session ends.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return nil
	}
	if !c.resource.Ready() || !c.session.Active() {
		return ErrNotReady
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.state = Running
	c.cancel = cancel
	c.done = make(chan struct{})
	c.last = Result{}
	metrics.SetFlag(&c.metrics.LoopRunning, true)

	go c.run(loopCtx, c.done)
	c.log.Info("detection loop started", "scale_factor", c.params.ScaleFactor, "min_neighbors", c.params.MinNeighbors)
	return nil
}

// Stop cancels the loop and waits for it to return to Idle.
// Stopping an idle loop does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current loop, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastResult returns a copy of the most recent tick's result.
func (c *Controller) LastResult() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.last
	r.Regions = append([]vision.Region(nil), c.last.Regions...)
	return r
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer c.finish(done)

	for {
		if err := c.sched.Next(ctx); err != nil {
			c.log.Debug("detection loop cancelled")
			return
		}
		if !c.session.Active() {
			c.log.Info("capture session ended, detection loop stopping")
			return
		}

		res, err := c.tick()
		switch {
		case err == nil:
			c.metrics.Ticks.Add(1)
			c.metrics.Faces.Add(uint64(len(res.Regions)))
			c.mu.Lock()
			c.last = res
			c.mu.Unlock()
			if c.onResult != nil {
				c.onResult(res)
			}
		case errors.Is(err, vision.ErrEmptyFrame):
			c.metrics.FramesSkipped.Add(1)
		case errors.Is(err, ErrSessionEnded):
			c.log.Info("capture session ended, detection loop stopping")
			return
		default:
			c.metrics.TickErrors.Add(1)
			c.log.Warn("detection tick failed", "error", err)
			if c.errs != nil {
				c.errs.SetError(describe(err))
			}
			return
		}
	}
}

func (c *Controller) finish(done chan struct{}) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.state = Idle
	c.cancel = nil
	c.last = Result{}
	c.mu.Unlock()
	metrics.SetFlag(&c.metrics.LoopRunning, false)
	close(done)
}

// tick captures one frame, detects, annotates and paints it. Every buffer
// it allocates is released before it returns.
func (c *Controller) tick() (Result, error) {
	if c.canvas == nil {
		return Result{}, ErrNoCanvas
	}
	lib, err := c.resource.Library()
	if err != nil {
		return Result{}, err
	}
	cls, err := c.resource.Classifier()
	if err != nil {
		return Result{}, err
	}
	stream := c.session.Stream()
	if stream == nil {
		return Result{}, ErrSessionEnded
	}

	frame, err := lib.Capture(stream)
	if err != nil {
		return Result{}, fmt.Errorf("capture frame: %w", err)
	}
	defer frame.Close()

	gray, err := lib.Grayscale(frame)
	if err != nil {
		return Result{}, fmt.Errorf("grayscale: %w", err)
	}
	defer gray.Close()

	regions, err := cls.DetectMultiScale(gray, c.params)
	if err != nil {
		return Result{}, fmt.Errorf("detect: %w", err)
	}

	for _, r := range regions {
		if err := lib.Draw(frame, r, c.label); err != nil {
			return Result{}, fmt.Errorf("draw %s: %w", r, err)
		}
	}

	img, err := lib.Render(frame)
	if err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}
	if err := c.canvas.Paint(img); err != nil {
		return Result{}, fmt.Errorf("paint: %w", err)
	}

	w, h := frame.Size()
	return Result{Regions: regions, Width: w, Height: h, At: time.Now()}, nil
}
