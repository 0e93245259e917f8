// Package transfer implements the chunked, resumable, cancellable
// upload/download state machine described in spec.md §4.3: small-file
// single-POST uploads, large-file prepare/part/finish uploads, range-
// resumable downloads, and directory transfers built from BFS over the
// single-file pipelines.
package transfer

import (
	"sync"

	"github.com/disconnec/FeiSync/internal/apierr"
)

// Control is the cooperative cancellation record paired with one active
// TransferTask: two flags plus a notifier, per the design note in
// spec.md §9. Every chunk boundary calls Yield.
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	notify    chan struct{}
}

// NewControl constructs a fresh, unpaused, uncancelled Control.
func NewControl() *Control {
	return &Control{notify: make(chan struct{}, 1)}
}

// Pause is idempotent.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume clears the pause flag and wakes any waiter. Idempotent.
func (c *Control) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Cancel is sticky: once set it cannot be cleared.
func (c *Control) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Control) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Control) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Yield is called at every chunk boundary / byte-stream iteration. It
// fails fast on cancellation and blocks (without holding any other
// lock) while paused, waking on the next Resume or Cancel.
func (c *Control) Yield() error {
	if c.isCancelled() {
		return apierr.New(apierr.Cancelled, "task cancelled")
	}
	for c.isPaused() {
		<-c.notify
		if c.isCancelled() {
			return apierr.New(apierr.Cancelled, "task cancelled")
		}
	}
	return nil
}
