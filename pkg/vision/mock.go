package vision

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-facecam/pkg/capture"
)

// MockBuffer implements Buffer for testing.
type MockBuffer struct {
	lib    *MockLibrary
	W, H   int
	Gray   bool
	closed bool
}

// Size returns the buffer dimensions.
func (b *MockBuffer) Size() (int, int) { return b.W, b.H }

// Close releases the buffer. Closing twice is reported as an error so
// tests catch double releases.
func (b *MockBuffer) Close() error {
	b.lib.mu.Lock()
	defer b.lib.mu.Unlock()
	if b.closed {
		return fmt.Errorf("buffer closed twice")
	}
	b.closed = true
	b.lib.live--
	return nil
}

// MockDraw records one Draw call.
type MockDraw struct {
	Region Region
	Label  string
}

// MockLibrary implements Library for testing.
// Function fields override the default behaviour when set.
type MockLibrary struct {
	CaptureFunc func(s capture.Stream) error
	DetectFunc  func(gray Buffer, p Params) ([]Region, error)
	LoadFunc    func(path string) error
	RenderFunc  func(b Buffer) ([]byte, error)

	mu        sync.Mutex
	live      int
	allocated int
	loads     []string
	draws     []MockDraw
	params    []Params
	renders   int
}

func (m *MockLibrary) alloc(w, h int, gray bool) *MockBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live++
	m.allocated++
	return &MockBuffer{lib: m, W: w, H: h, Gray: gray}
}

// Capture returns a 640x480 colour buffer.
func (m *MockLibrary) Capture(s capture.Stream) (Buffer, error) {
	if m.CaptureFunc != nil {
		if err := m.CaptureFunc(s); err != nil {
			return nil, err
		}
	}
	return m.alloc(640, 480, false), nil
}

// Grayscale returns a gray buffer of the same size.
func (m *MockLibrary) Grayscale(src Buffer) (Buffer, error) {
	w, h := src.Size()
	return m.alloc(w, h, true), nil
}

// LoadClassifier records the path and returns a MockClassifier.
func (m *MockLibrary) LoadClassifier(path string) (Classifier, error) {
	m.mu.Lock()
	m.loads = append(m.loads, path)
	m.mu.Unlock()
	if m.LoadFunc != nil {
		if err := m.LoadFunc(path); err != nil {
			return nil, err
		}
	}
	return &MockClassifier{lib: m}, nil
}

// Draw records the region and label.
func (m *MockLibrary) Draw(dst Buffer, r Region, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draws = append(m.draws, MockDraw{Region: r, Label: label})
	return nil
}

// Render returns a small placeholder payload.
func (m *MockLibrary) Render(b Buffer) ([]byte, error) {
	m.mu.Lock()
	m.renders++
	m.mu.Unlock()
	if m.RenderFunc != nil {
		return m.RenderFunc(b)
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

// Live returns how many buffers are allocated and not yet closed.
func (m *MockLibrary) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Allocated returns how many buffers were ever allocated.
func (m *MockLibrary) Allocated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// Loads returns every path passed to LoadClassifier.
func (m *MockLibrary) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

// Draws returns every recorded Draw call.
func (m *MockLibrary) Draws() []MockDraw {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockDraw(nil), m.draws...)
}

// Params returns the parameters of every detection call.
func (m *MockLibrary) Params() []Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Params(nil), m.params...)
}

// Renders returns how many frames were rendered.
func (m *MockLibrary) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}

// MockClassifier implements Classifier by delegating to its library.
type MockClassifier struct {
	lib    *MockLibrary
	closed bool
}

// DetectMultiScale records p and returns DetectFunc's result, or no regions.
func (c *MockClassifier) DetectMultiScale(gray Buffer, p Params) ([]Region, error) {
	c.lib.mu.Lock()
	c.lib.params = append(c.lib.params, p)
	c.lib.mu.Unlock()
	if c.lib.DetectFunc != nil {
		return c.lib.DetectFunc(gray, p)
	}
	return nil, nil
}

// Close marks the classifier closed.
func (c *MockClassifier) Close() error {
	c.closed = true
	return nil
}
