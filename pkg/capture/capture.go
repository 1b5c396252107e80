// Package capture manages the lifecycle of a live camera session:
// acquire a video source from the host, bind it to a display surface,
// and release it again.
//
// The host camera and the display are reached through the Source and
// Surface interfaces. pkg/cv provides the gocv-backed Source and pkg/web
// provides the Surface that streams previews to the page.
package capture

import "context"

// Constraints describe what kind of media a session requests.
type Constraints struct {
	Video bool
	Audio bool
}

// VideoOnly is the only constraint set the page ever requests.
var VideoOnly = Constraints{Video: true, Audio: false}

// Track is one revocable media track of a Stream.
type Track interface {
	// Kind returns "video" or "audio".
	Kind() string

	// Stop releases the track. Stopping a stopped track is a no-op.
	Stop()
}

// Stream is a live, revocable capture source.
type Stream interface {
	// ID identifies the stream for logging.
	ID() string

	// Tracks returns every underlying track.
	Tracks() []Track
}

// Source is the host capability that hands out capture streams.
// Acquire may block for as long as the host needs (for example a
// permission prompt); only ctx bounds it.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Surface is the display a stream is bound to while a session is active.
type Surface interface {
	Bind(s Stream) error
	Unbind()
}

// ErrorReporter receives user-visible failures. Each new failure
// replaces the previous one; a success clears it.
type ErrorReporter interface {
	SetError(msg string)
	ClearError()
}

// StopAll stops every track of s. A nil stream is ignored.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
