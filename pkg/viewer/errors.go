package viewer

import "sync"

// ErrorState holds the single error line shown on the page. Each new
// failure overwrites it and a successful start clears it.
type ErrorState struct {
	mu       sync.RWMutex
	msg      string
	onChange func()
}

// SetError records msg as the current failure.
func (e *ErrorState) SetError(msg string) {
	e.mu.Lock()
	e.msg = msg
	cb := e.onChange
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// ClearError removes the current failure.
func (e *ErrorState) ClearError() {
	e.mu.Lock()
	changed := e.msg != ""
	e.msg = ""
	cb := e.onChange
	e.mu.Unlock()
	if changed && cb != nil {
		cb()
	}
}

// Message returns the current failure, or "" when there is none.
func (e *ErrorState) Message() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.msg
}

func (e *ErrorState) notify(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}
