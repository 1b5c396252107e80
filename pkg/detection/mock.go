package detection

import (
	"context"
	"sync"
	"time"
)

// ManualClock is a Scheduler driven by the test. Each Step releases one
// tick and waits until the loop is ready for the next one.
type ManualClock struct {
	tick chan struct{}
	idle chan struct{}
}

// NewManualClock creates a ManualClock.
func NewManualClock() *ManualClock {
	return &ManualClock{
		tick: make(chan struct{}),
		idle: make(chan struct{}),
	}
}

// Next implements Scheduler.
func (c *ManualClock) Next(ctx context.Context) error {
	select {
	case c.idle <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step releases one tick. It returns true once the loop has finished the
// tick and is waiting again, false if that did not happen within timeout
// (for example because the loop exited).
func (c *ManualClock) Step(timeout time.Duration) bool {
	deadline := time.After(timeout)

	for sent := false; !sent; {
		select {
		case c.tick <- struct{}{}:
			sent = true
		case <-c.idle:
			// the loop reached Next; it takes the tick on the next pass
		case <-deadline:
			return false
		}
	}

	select {
	case <-c.idle:
		return true
	case <-deadline:
		return false
	}
}

// MockCanvas implements Canvas for testing.
type MockCanvas struct {
	PaintFunc func(frame []byte) error

	mu     sync.Mutex
	frames [][]byte
}

// Paint records the frame.
func (m *MockCanvas) Paint(frame []byte) error {
	if m.PaintFunc != nil {
		if err := m.PaintFunc(frame); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	return nil
}

// Frames returns how many frames were painted.
func (m *MockCanvas) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}
