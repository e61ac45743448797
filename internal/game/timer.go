package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a cancellable countdown with an absolute deadline and periodic tick
// notifications. Callbacks run on the timer's own goroutine; callers that need
// serialization (the session loop) wrap them so each firing is enqueued as a
// command rather than run inline.
type Timer struct {
	clock     clockwork.Clock
	tickEvery time.Duration

	mu        sync.Mutex
	remaining time.Duration
	deadline  time.Time
	running   bool
	expired   bool
	cancel    chan struct{}
	exited    chan struct{}
}

// NewTimer builds a stopped timer holding the full duration. A non-positive
// tickEvery disables tick notifications.
func NewTimer(clock clockwork.Clock, total, tickEvery time.Duration) *Timer {
	return &Timer{
		clock:     clock,
		tickEvery: tickEvery,
		remaining: total,
	}
}

// Start begins counting down the remaining duration. onTick receives the time
// left after each tick interval; onExpire fires exactly once when the deadline
// passes. Starting a running or expired timer is a no-op.
func (t *Timer) Start(onTick func(remaining time.Duration), onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.expired {
		return
	}
	if t.remaining <= 0 {
		t.expired = true
		go onExpire()
		return
	}
	t.running = true
	t.deadline = t.clock.Now().Add(t.remaining)
	t.cancel = make(chan struct{})
	t.exited = make(chan struct{})
	go t.run(t.remaining, t.cancel, t.exited, onTick, onExpire)
}

func (t *Timer) run(d time.Duration, cancel, exited chan struct{}, onTick func(time.Duration), onExpire func()) {
	expiry := t.clock.NewTimer(d)
	defer close(exited)
	defer stopAndDrainTimer(expiry)

	var tick <-chan time.Time
	if t.tickEvery > 0 {
		ticker := t.clock.NewTicker(t.tickEvery)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-tick:
			t.mu.Lock()
			remaining := t.deadline.Sub(t.clock.Now())
			stopped := !t.running
			t.mu.Unlock()
			if stopped {
				return
			}
			if remaining < 0 {
				remaining = 0
			}
			if onTick != nil {
				onTick(remaining)
			}
		case <-expiry.Chan():
			t.mu.Lock()
			if !t.running {
				// Paused or stopped in the same instant the deadline passed;
				// the preserved remaining duration wins.
				t.mu.Unlock()
				return
			}
			t.running = false
			t.expired = true
			t.remaining = 0
			t.mu.Unlock()
			onExpire()
			return
		case <-cancel:
			return
		}
	}
}

// Pause freezes the countdown, preserving the remaining duration exactly.
// It returns only after the countdown goroutine and its clock waiters are
// gone, so a later Resume schedules against a clean clock.
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.remaining = t.deadline.Sub(t.clock.Now())
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.running = false
	close(t.cancel)
	t.cancel = nil
	exited := t.exited
	t.mu.Unlock()
	<-exited
}

// Resume restarts the countdown from the preserved remaining duration.
func (t *Timer) Resume(onTick func(remaining time.Duration), onExpire func()) {
	t.Start(onTick, onExpire)
}

// Stop cancels the countdown permanently. An expired timer stays expired.
func (t *Timer) Stop() {
	t.mu.Lock()
	var exited chan struct{}
	if t.running {
		t.running = false
		close(t.cancel)
		t.cancel = nil
		exited = t.exited
	}
	t.expired = true
	t.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

// Remaining reports the time left on the countdown.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		r := t.deadline.Sub(t.clock.Now())
		if r < 0 {
			return 0
		}
		return r
	}
	return t.remaining
}

// Expired reports whether the countdown ran to its deadline.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// stopAndDrainTimer stops a timer and drains its channel so the goroutine
// waiting on it can be collected, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
