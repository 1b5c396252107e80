package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-facecam/internal/log"
	"github.com/teslashibe/go-facecam/pkg/capture"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/viewer"
	"github.com/teslashibe/go-facecam/pkg/vision"
)

type mockPage struct {
	mu        sync.Mutex
	streaming bool
	err       error
	toggles   int
}

func (p *mockPage) Toggle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toggles++
	if p.err != nil {
		return p.err
	}
	p.streaming = !p.streaming
	return nil
}

func (p *mockPage) Status() viewer.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := viewer.Status{Streaming: p.streaming, Label: viewer.LabelStart, Detection: "idle"}
	if p.streaming {
		st.Label = viewer.LabelStop
	}
	if p.err != nil {
		st.Error = capture.Describe(p.err)
	}
	return st
}

func newTestServer(page Page) *Server {
	s := NewServer(Config{Port: "0", Metrics: metrics.New(), Logger: log.Nop()})
	if page != nil {
		s.Attach(page)
	}
	return s
}

func decodeStatus(t *testing.T, body io.Reader) viewer.Status {
	t.Helper()
	var st viewer.Status
	if err := json.NewDecoder(body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestIndex(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Start Video") {
		t.Error("page should render the start label")
	}
}

func TestAPI_NotAttached(t *testing.T) {
	s := newTestServer(nil)

	for _, tt := range []struct{ method, path string }{
		{"GET", "/api/status"},
		{"POST", "/api/toggle"},
	} {
		resp, err := s.App().Test(httptest.NewRequest(tt.method, tt.path, nil))
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		if resp.StatusCode != 503 {
			t.Errorf("%s %s = %d, want 503", tt.method, tt.path, resp.StatusCode)
		}
	}
}

func TestAPI_Toggle(t *testing.T) {
	page := &mockPage{}
	s := newTestServer(page)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/toggle", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if st := decodeStatus(t, resp.Body); !st.Streaming || st.Label != viewer.LabelStop {
		t.Errorf("status after start = %+v", st)
	}

	resp, _ = s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if st := decodeStatus(t, resp.Body); !st.Streaming {
		t.Error("GET /api/status should report streaming")
	}

	resp, _ = s.App().Test(httptest.NewRequest("POST", "/api/toggle", nil))
	if st := decodeStatus(t, resp.Body); st.Streaming || st.Label != viewer.LabelStart {
		t.Errorf("status after stop = %+v", st)
	}
	if page.toggles != 2 {
		t.Errorf("toggles = %d, want 2", page.toggles)
	}
}

func TestAPI_ToggleRefused(t *testing.T) {
	page := &mockPage{err: capture.ErrPermissionDenied}
	s := newTestServer(page)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/toggle", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	st := decodeStatus(t, resp.Body)
	if st.Error != "Permission denied" || st.Streaming {
		t.Errorf("status = %+v", st)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "facecam_session_active") {
		t.Error("metrics output missing facecam gauges")
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

// serve starts s on a loopback listener and returns its ws:// base URL.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var (
		conn *websocket.Conn
		err  error
	)
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusWebsocket(t *testing.T) {
	page := &mockPage{}
	s := newTestServer(page)
	conn := dial(t, serve(t, s)+"/ws/status")

	var st viewer.Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if st.Label != viewer.LabelStart {
		t.Errorf("initial label = %q", st.Label)
	}

	waitFor(t, "status subscriber", func() bool { return s.StatusHub().ClientCount() == 1 })
	s.PublishStatus(viewer.Status{Streaming: true, Label: viewer.LabelStop})

	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !st.Streaming || st.Label != viewer.LabelStop {
		t.Errorf("update = %+v", st)
	}
}

func TestCanvasWebsocket(t *testing.T) {
	s := newTestServer(nil)
	conn := dial(t, serve(t, s)+"/ws/canvas")
	waitFor(t, "canvas subscriber", func() bool { return s.CanvasHub().ClientCount() == 1 })

	canvas := NewCanvas(s.CanvasHub())
	if err := canvas.Paint([]byte{0xFF, 0xD8, 0xFF, 0xD9}); err != nil {
		t.Fatalf("Paint: %v", err)
	}

	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if kind != websocket.BinaryMessage || len(data) != 4 {
		t.Errorf("frame = %d %v", kind, data)
	}

	if err := canvas.Paint(nil); !errors.Is(err, vision.ErrEmptyFrame) {
		t.Errorf("Paint(nil) = %v, want ErrEmptyFrame", err)
	}
}

type countingSnapshotter struct {
	calls atomic.Int64
	empty atomic.Bool
}

func (c *countingSnapshotter) Snapshot(capture.Stream) ([]byte, error) {
	c.calls.Add(1)
	if c.empty.Load() {
		return nil, vision.ErrEmptyFrame
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func TestPreview_PumpsWhileBound(t *testing.T) {
	s := newTestServer(nil)
	conn := dial(t, serve(t, s)+"/ws/video")
	waitFor(t, "video subscriber", func() bool { return s.VideoHub().ClientCount() == 1 })

	snap := &countingSnapshotter{}
	p := NewPreview(s.VideoHub(), snap, 5*time.Millisecond, log.Nop())

	if err := p.Bind(capture.NewMockStream("cam")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !p.Bound() {
		t.Error("Bound should be true after Bind")
	}

	kind, _, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("frame kind = %d", kind)
	}

	p.Unbind()
	if p.Bound() {
		t.Error("Bound should be false after Unbind")
	}
	n := snap.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if snap.calls.Load() != n {
		t.Error("snapshots continued after Unbind")
	}
	p.Unbind()
}

func TestPreview_SkipsWithoutViewers(t *testing.T) {
	s := newTestServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.StartHubs(ctx)

	snap := &countingSnapshotter{}
	p := NewPreview(s.VideoHub(), snap, 2*time.Millisecond, log.Nop())
	if err := p.Bind(capture.NewMockStream("cam")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	p.Unbind()

	if n := snap.calls.Load(); n != 0 {
		t.Errorf("snapshot called %d times with no viewers", n)
	}
}

func TestPreview_BindNil(t *testing.T) {
	p := NewPreview(NewServer(Config{Logger: log.Nop()}).VideoHub(), &countingSnapshotter{}, 0, log.Nop())
	if err := p.Bind(nil); !errors.Is(err, ErrNoStream) {
		t.Errorf("Bind(nil) = %v, want ErrNoStream", err)
	}
}
