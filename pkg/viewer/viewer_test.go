package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-facecam/internal/log"
	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/detection"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

const stepTimeout = 2 * time.Second

type rig struct {
	v        *Viewer
	source   *capture.MockSource
	surface  *capture.MockSurface
	canvas   *detection.MockCanvas
	clock    *detection.ManualClock
	lib      *vision.MockLibrary
	resource *vision.Resource

	mu      sync.Mutex
	changes []Status
}

func newRig(t *testing.T, loader vision.Loader) *rig {
	t.Helper()
	r := &rig{
		source:  &capture.MockSource{},
		surface: &capture.MockSurface{},
		canvas:  &detection.MockCanvas{},
		clock:   detection.NewManualClock(),
		lib:     &vision.MockLibrary{},
	}
	if loader == nil {
		loader = vision.LoaderFunc(func(ctx context.Context) (vision.Library, vision.Classifier, error) {
			cls, err := r.lib.LoadClassifier("haarcascade_frontalface_default.xml")
			return r.lib, cls, err
		})
	}
	m := metrics.New()
	r.resource = vision.NewResource(loader, m, log.Nop())

	v, err := New(Config{
		Source:    r.source,
		Surface:   r.surface,
		Canvas:    r.canvas,
		Resource:  r.resource,
		Scheduler: r.clock,
		OnChange: func(s Status) {
			r.mu.Lock()
			r.changes = append(r.changes, s)
			r.mu.Unlock()
		},
		Metrics: m,
		Logger:  log.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.v = v
	t.Cleanup(v.Unmount)
	return r
}

func (r *rig) mountAndWait(t *testing.T) {
	t.Helper()
	r.v.Mount(context.Background())
	select {
	case <-r.resource.Done():
	case <-time.After(stepTimeout):
		t.Fatal("resource load did not finish")
	}
}

func (r *rig) lastChange() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return Status{}, false
	}
	return r.changes[len(r.changes)-1], true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(stepTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestViewer_InitialState(t *testing.T) {
	r := newRig(t, nil)

	st := r.v.Status()
	if st.Streaming || st.Label != LabelStart || st.Error != "" {
		t.Errorf("initial status = %+v", st)
	}
	if st.Detection != "idle" || st.DetectionReady {
		t.Errorf("detection should be idle and unloaded, got %+v", st)
	}
	if len(r.source.Calls()) != 0 {
		t.Error("camera must not be requested before the first toggle")
	}
}

func TestViewer_StartDetectStop(t *testing.T) {
	r := newRig(t, nil)
	r.lib.DetectFunc = func(vision.Buffer, vision.Params) ([]vision.Region, error) {
		return []vision.Region{{X: 10, Y: 20, Width: 50, Height: 50}}, nil
	}
	r.mountAndWait(t)

	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := r.v.Label(); got != LabelStop {
		t.Errorf("Label = %q, want %q", got, LabelStop)
	}
	if r.surface.Bound() == nil {
		t.Fatal("stream should be bound to the surface")
	}
	if r.v.Detection().State() != detection.Running {
		t.Fatal("detection should be running")
	}

	for i := 0; i < 3; i++ {
		if !r.clock.Step(stepTimeout) {
			t.Fatalf("tick %d did not complete", i)
		}
	}
	if r.canvas.Frames() != 3 {
		t.Errorf("painted %d frames, want 3", r.canvas.Frames())
	}
	if st := r.v.Status(); st.Faces != 1 || len(st.Regions) != 1 {
		t.Errorf("status faces = %d regions = %v", st.Faces, st.Regions)
	}
	for _, d := range r.lib.Draws() {
		if d.Label != detection.DefaultLabel {
			t.Errorf("draw label = %q", d.Label)
		}
	}

	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if got := r.v.Label(); got != LabelStart {
		t.Errorf("Label = %q, want %q", got, LabelStart)
	}
	if r.v.Detection().State() != detection.Idle {
		t.Error("detection should be idle after stop")
	}
	if r.source.Live() != 0 {
		t.Errorf("%d streams still live after stop", r.source.Live())
	}
	if r.surface.Bound() != nil {
		t.Error("surface should be unbound after stop")
	}
	if r.lib.Live() != 0 {
		t.Errorf("%d buffers leaked", r.lib.Live())
	}
	if st := r.v.Status(); st.Faces != 0 {
		t.Errorf("faces after stop = %d", st.Faces)
	}
}

func TestViewer_PermissionDenied(t *testing.T) {
	r := newRig(t, nil)
	r.source.AcquireFunc = func(context.Context, capture.Constraints) (capture.Stream, error) {
		return nil, capture.ErrPermissionDenied
	}
	r.mountAndWait(t)

	err := r.v.Toggle(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Toggle = %v, want ErrPermissionDenied", err)
	}

	st := r.v.Status()
	if st.Error != "Permission denied" {
		t.Errorf("error line = %q", st.Error)
	}
	if st.Streaming || st.Label != LabelStart || st.Detection != "idle" {
		t.Errorf("status after refusal = %+v", st)
	}

	last, ok := r.lastChange()
	if !ok || last.Error != "Permission denied" {
		t.Errorf("last broadcast = %+v", last)
	}
}

func TestViewer_ErrorClearedByNextStart(t *testing.T) {
	r := newRig(t, nil)
	refuse := true
	r.source.AcquireFunc = func(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
		if refuse {
			return nil, capture.ErrNoDevice
		}
		return capture.NewMockStream("ok"), nil
	}

	r.v.Toggle(context.Background())
	if got := r.v.Errors().Message(); got != "Requested device not found" {
		t.Fatalf("error line = %q", got)
	}

	refuse = false
	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := r.v.Errors().Message(); got != "" {
		t.Errorf("error line after success = %q", got)
	}
}

func TestViewer_ResourceFailureKeepsDetectionOff(t *testing.T) {
	r := newRig(t, vision.LoaderFunc(func(ctx context.Context) (vision.Library, vision.Classifier, error) {
		return nil, nil, vision.ErrClassifierNotFound
	}))
	r.mountAndWait(t)

	waitFor(t, "load error", func() bool { return r.v.Errors().Message() != "" })
	if msg := r.v.Errors().Message(); !strings.HasPrefix(msg, "Failed to load face detection library") {
		t.Errorf("error line = %q", msg)
	}

	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	st := r.v.Status()
	if !st.Streaming || st.DetectionReady || st.Detection != "idle" {
		t.Errorf("status = %+v, want streaming without detection", st)
	}
	if r.lib.Allocated() != 0 || r.canvas.Frames() != 0 {
		t.Error("no frame should be processed without the classifier")
	}
}

func TestViewer_LoadCompletesWhileStreaming(t *testing.T) {
	gate := make(chan struct{})
	var r *rig
	r = newRig(t, vision.LoaderFunc(func(ctx context.Context) (vision.Library, vision.Classifier, error) {
		<-gate
		cls, err := r.lib.LoadClassifier("cascade.xml")
		return r.lib, cls, err
	}))

	r.v.Mount(context.Background())
	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if r.v.Detection().State() != detection.Idle {
		t.Fatal("detection must wait for the classifier")
	}

	close(gate)
	waitFor(t, "detection start", func() bool {
		return r.v.Detection().State() == detection.Running
	})
	if !r.clock.Step(stepTimeout) {
		t.Fatal("tick did not complete")
	}
	if r.canvas.Frames() != 1 {
		t.Errorf("painted %d frames, want 1", r.canvas.Frames())
	}
}

func TestViewer_LoadCompletesWhileStopped(t *testing.T) {
	r := newRig(t, nil)
	r.mountAndWait(t)

	waitFor(t, "ready", r.resource.Ready)
	if r.v.Detection().State() != detection.Idle {
		t.Error("detection must not start without a session")
	}
	if len(r.source.Calls()) != 0 {
		t.Error("loading the classifier must not request the camera")
	}
}

func TestViewer_TickFailureShowsError(t *testing.T) {
	r := newRig(t, nil)
	r.canvas.PaintFunc = func([]byte) error { return errors.New("context lost") }
	r.mountAndWait(t)

	if err := r.v.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	// the loop exits on the failed tick, so Step reports false
	r.clock.Step(200 * time.Millisecond)
	r.v.Detection().Wait()

	if msg := r.v.Errors().Message(); !strings.HasPrefix(msg, "Face detection failed") {
		t.Errorf("error line = %q", msg)
	}
	if !r.v.Status().Streaming {
		t.Error("a detection failure should leave the video running")
	}

	r.v.Toggle(context.Background())
	if r.source.Live() != 0 || r.lib.Live() != 0 {
		t.Error("resources leaked after failure and stop")
	}
}

func TestViewer_MountTwiceLoadsOnce(t *testing.T) {
	r := newRig(t, nil)
	r.mountAndWait(t)
	r.v.Mount(context.Background())
	waitFor(t, "ready", r.resource.Ready)

	if n := len(r.lib.Loads()); n != 1 {
		t.Errorf("classifier loaded %d times, want 1", n)
	}
}

func TestViewer_Unmount(t *testing.T) {
	r := newRig(t, nil)
	r.mountAndWait(t)
	r.v.Toggle(context.Background())
	r.clock.Step(stepTimeout)

	r.v.Unmount()

	if r.v.Status().Streaming {
		t.Error("still streaming after unmount")
	}
	if r.v.Detection().State() != detection.Idle {
		t.Error("detection still running after unmount")
	}
	if r.source.Live() != 0 {
		t.Error("stream not released on unmount")
	}
	r.v.Unmount()
}

func TestViewer_ConcurrentToggles(t *testing.T) {
	r := newRig(t, nil)
	r.mountAndWait(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.v.Toggle(context.Background())
		}()
	}
	wg.Wait()

	// 20 toggles from idle end idle.
	if r.v.Status().Streaming {
		t.Error("even number of toggles should end stopped")
	}
	if r.source.Live() != 0 {
		t.Errorf("%d streams live", r.source.Live())
	}
	if len(r.source.Calls()) != 10 {
		t.Errorf("acquired %d times, want 10", len(r.source.Calls()))
	}
}

func TestViewer_BroadcastsLabelChanges(t *testing.T) {
	r := newRig(t, nil)
	r.mountAndWait(t)

	r.v.Toggle(context.Background())
	if last, _ := r.lastChange(); last.Label != LabelStop || !last.Streaming {
		t.Errorf("broadcast after start = %+v", last)
	}
	r.v.Toggle(context.Background())
	if last, _ := r.lastChange(); last.Label != LabelStart || last.Streaming {
		t.Errorf("broadcast after stop = %+v", last)
	}
}

func TestErrorState(t *testing.T) {
	var calls int
	e := &ErrorState{}
	e.notify(func() { calls++ })

	e.ClearError()
	if calls != 0 {
		t.Error("clearing an empty error should not notify")
	}
	e.SetError("first")
	e.SetError("second")
	if e.Message() != "second" {
		t.Errorf("Message = %q, want latest", e.Message())
	}
	e.ClearError()
	if e.Message() != "" || calls != 3 {
		t.Errorf("Message = %q calls = %d", e.Message(), calls)
	}
}
