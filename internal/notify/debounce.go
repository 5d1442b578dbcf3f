// Package notify implements the idle-notification debouncer.
//
// When a session's terminal goes quiet, a notification is scheduled rather
// than sent: the debounce window absorbs bursts of output so the chat gets
// one message when the session actually settles. Scheduling again within
// the window restarts it, and a successful input injection cancels the
// pending notification outright, since the user is clearly present.
package notify

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending notification per session.
type Debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates an empty debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{timers: make(map[string]*time.Timer)}
}

// Schedule arms a notification for the session after the given delay,
// replacing any pending one. fn runs on the timer goroutine exactly once
// unless the schedule is replaced or cancelled first.
func (d *Debouncer) Schedule(session string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[session]; ok {
		t.Stop()
	}

	d.timers[session] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, session)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending notification for the session, if any. Returns
// true if one was pending.
func (d *Debouncer) Cancel(session string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.timers[session]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, session)
	return true
}

// Pending reports whether a notification is armed for the session.
func (d *Debouncer) Pending(session string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[session]
	return ok
}

// Stop cancels every pending notification. Called on shutdown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for session, t := range d.timers {
		t.Stop()
		delete(d.timers, session)
	}
}
