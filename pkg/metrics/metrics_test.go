package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Ticks.Add(3)
	m.Faces.Add(5)
	SetFlag(&m.SessionActive, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"facecam_ticks_total 3",
		"facecam_faces_detected_total 5",
		"facecam_session_active 1",
		"facecam_loop_running 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSetFlag(t *testing.T) {
	m := New()
	SetFlag(&m.LoopRunning, true)
	if m.LoopRunning.Load() != 1 {
		t.Errorf("LoopRunning = %d, want 1", m.LoopRunning.Load())
	}
	SetFlag(&m.LoopRunning, false)
	if m.LoopRunning.Load() != 0 {
		t.Errorf("LoopRunning = %d, want 0", m.LoopRunning.Load())
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Each instance registers the same names; a shared registry would panic.
	a, b := New(), New()
	if a.Registry() == b.Registry() {
		t.Error("instances should not share a registry")
	}
}
