package capture

import (
	"context"
	"fmt"
	"sync"
)

// MockTrack implements Track for testing.
type MockTrack struct {
	mu      sync.Mutex
	kind    string
	stopped bool
	stops   int
}

// NewMockTrack creates a live track of the given kind.
func NewMockTrack(kind string) *MockTrack {
	return &MockTrack{kind: kind}
}

// Kind returns the track kind.
func (t *MockTrack) Kind() string { return t.kind }

// Stop marks the track stopped and counts the call.
func (t *MockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.stops++
}

// Stopped reports whether Stop has been called.
func (t *MockTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// MockStream implements Stream for testing.
type MockStream struct {
	id     string
	tracks []*MockTrack
}

// NewMockStream creates a stream with one video track.
func NewMockStream(id string) *MockStream {
	return &MockStream{id: id, tracks: []*MockTrack{NewMockTrack("video")}}
}

// ID returns the stream ID.
func (s *MockStream) ID() string { return s.id }

// Tracks returns the stream's tracks.
func (s *MockStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Released reports whether every track has been stopped.
func (s *MockStream) Released() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

// MockSource implements Source for testing.
// AcquireFunc, when set, decides the outcome of each request.
type MockSource struct {
	AcquireFunc func(ctx context.Context, c Constraints) (Stream, error)

	mu      sync.Mutex
	streams []*MockStream
	calls   []Constraints
}

// Acquire records the request and returns a fresh MockStream unless
// AcquireFunc overrides it.
func (m *MockSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	n := len(m.calls)
	m.mu.Unlock()

	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := NewMockStream(fmt.Sprintf("mock-%d", n))
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Calls returns the constraints of every Acquire call.
func (m *MockSource) Calls() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Constraints(nil), m.calls...)
}

// Streams returns every stream handed out by the default path.
func (m *MockSource) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Live counts handed-out streams that still have a running track.
func (m *MockSource) Live() int {
	n := 0
	for _, s := range m.Streams() {
		if !s.Released() {
			n++
		}
	}
	return n
}

// MockSurface implements Surface for testing.
type MockSurface struct {
	// BindFunc, when set, is consulted before the stream is bound.
	BindFunc func(s Stream) error

	mu      sync.Mutex
	bound   Stream
	binds   int
	unbinds int
}

// Bind records s as the bound stream.
func (m *MockSurface) Bind(s Stream) error {
	if m.BindFunc != nil {
		if err := m.BindFunc(s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = s
	m.binds++
	return nil
}

// Unbind clears the bound stream.
func (m *MockSurface) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = nil
	m.unbinds++
}

// Bound returns the currently bound stream.
func (m *MockSurface) Bound() Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound
}

// Counts returns how often Bind and Unbind succeeded.
func (m *MockSurface) Counts() (binds, unbinds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binds, m.unbinds
}

// MockErrors implements ErrorReporter for testing.
type MockErrors struct {
	mu  sync.Mutex
	msg string
	set int
}

// SetError stores msg.
func (m *MockErrors) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msg = msg
	m.set++
}

// ClearError clears the stored message.
func (m *MockErrors) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msg = ""
}

// Message returns the stored message.
func (m *MockErrors) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msg
}

// Failures returns how many times SetError was called.
func (m *MockErrors) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}
