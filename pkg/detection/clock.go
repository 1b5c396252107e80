package detection

import (
	"context"
	"time"
)

// FrameClock paces the loop at a fixed frame rate. A tick that overruns
// its slot is followed immediately by the next one; missed slots are not
// replayed. A FrameClock is used by one loop at a time.
type FrameClock struct {
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

// NewFrameClock returns a clock ticking fps times per second.
func NewFrameClock(fps int) *FrameClock {
	if fps <= 0 {
		fps = 30
	}
	return &FrameClock{
		interval: time.Second / time.Duration(fps),
		now:      time.Now,
	}
}

// Interval returns the frame period.
func (f *FrameClock) Interval() time.Duration {
	return f.interval
}

// Next waits for the next frame boundary.
func (f *FrameClock) Next(ctx context.Context) error {
	now := f.now()
	if f.next.IsZero() || f.next.Before(now) {
		f.next = now
	}
	wait := f.next.Sub(now)
	f.next = f.next.Add(f.interval)

	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
