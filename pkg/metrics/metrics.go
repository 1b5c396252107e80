// Package metrics exposes capture and detection counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Capture session
	SessionsStarted atomic.Uint64
	SessionsStopped atomic.Uint64
	AcquireFailures atomic.Uint64
	SessionActive   atomic.Uint64 // 0 = inactive, 1 = active

	// Classifier resource
	ResourceLoaded     atomic.Uint64 // 0 = not loaded, 1 = loaded
	ResourceLoadErrors atomic.Uint64
	ResourceLoadMillis atomic.Uint64

	// Detection loop
	Ticks         atomic.Uint64
	TickErrors    atomic.Uint64
	FramesSkipped atomic.Uint64
	Faces         atomic.Uint64
	LoopRunning   atomic.Uint64 // 0 = idle, 1 = running

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) gauge(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) register() {
	m.gauge("facecam_sessions_started_total", "Capture sessions successfully started", &m.SessionsStarted)
	m.gauge("facecam_sessions_stopped_total", "Capture sessions stopped", &m.SessionsStopped)
	m.gauge("facecam_acquire_failures_total", "Failed camera acquisitions", &m.AcquireFailures)
	m.gauge("facecam_session_active", "Whether a capture session is active", &m.SessionActive)

	m.gauge("facecam_resource_loaded", "Whether the classifier resource is loaded", &m.ResourceLoaded)
	m.gauge("facecam_resource_load_errors_total", "Failed classifier resource loads", &m.ResourceLoadErrors)
	m.gauge("facecam_resource_load_milliseconds", "Time spent loading the classifier resource", &m.ResourceLoadMillis)

	m.gauge("facecam_ticks_total", "Detection loop ticks", &m.Ticks)
	m.gauge("facecam_tick_errors_total", "Detection ticks that ended with an error", &m.TickErrors)
	m.gauge("facecam_frames_skipped_total", "Ticks skipped because no frame was available", &m.FramesSkipped)
	m.gauge("facecam_faces_detected_total", "Face regions detected across all ticks", &m.Faces)
	m.gauge("facecam_loop_running", "Whether the detection loop is running", &m.LoopRunning)

	m.registry.MustRegister(collectors.NewGoCollector())
}

// SetFlag stores 1 for true and 0 for false.
func SetFlag(v *atomic.Uint64, on bool) {
	if on {
		v.Store(1)
		return
	}
	v.Store(0)
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving the metrics in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
