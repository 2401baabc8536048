// Package timer implements a countdown measured against a fixed end time.
//
// Every poll recomputes the remaining time from the target, so scheduling
// jitter never accumulates. Callbacks are handed to a Dispatcher that runs
// them on the owner's coordination context; each run carries a generation
// number and a callback from a superseded run drops itself there, so
// nothing fires after Stop returns.
package timer

import (
	"errors"
	"sync"
	"time"

	"focusloop/internal/clock"
)

// DefaultPollInterval is the sub-second cadence used to sample the clock.
const DefaultPollInterval = 100 * time.Millisecond

var (
	// ErrInvalidPoll is returned when the poll interval is outside (0, 1s].
	ErrInvalidPoll = errors.New("timer: poll interval must be in (0, 1s]")
	// ErrNoDispatcher is returned when the timer has nowhere to run callbacks.
	ErrNoDispatcher = errors.New("timer: no dispatcher")
	// ErrNoClock is returned when the timer has no clock.
	ErrNoClock = errors.New("timer: no clock")
)

// Dispatcher runs fn on the coordination context that owns the timer.
type Dispatcher func(fn func())

// Timer is a single-shot countdown. Only one run is active at a time.
type Timer struct {
	clock    clock.Clock
	poll     time.Duration
	dispatch Dispatcher

	mu        sync.Mutex
	gen       uint64
	running   bool
	targetEnd time.Time
	done      chan struct{}
}

// New creates a stopped timer.
func New(clk clock.Clock, poll time.Duration, dispatch Dispatcher) *Timer {
	return &Timer{
		clock:    clk,
		poll:     poll,
		dispatch: dispatch,
	}
}

// Start arms the countdown for seconds. onTick receives the initial value
// synchronously and then every change of the whole-second remainder;
// onElapsed runs once when the countdown reaches zero. A running countdown
// is stopped first.
func (t *Timer) Start(seconds int, onTick func(remaining int), onElapsed func()) error {
	if err := t.validate(); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}

	t.Stop()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	target := t.clock.Now().Add(time.Duration(seconds) * time.Second)
	done := make(chan struct{})
	t.running = true
	t.targetEnd = target
	t.done = done
	ticker := t.clock.NewTicker(t.poll)
	t.mu.Unlock()

	if onTick != nil {
		onTick(seconds)
	}

	go t.run(gen, target, seconds, ticker, done, onTick, onElapsed)
	return nil
}

// Resume restarts the countdown from remaining seconds. Time spent paused
// is not counted.
func (t *Timer) Resume(remaining int, onTick func(remaining int), onElapsed func()) error {
	return t.Start(remaining, onTick, onElapsed)
}

// Stop cancels the current run. It is idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Pause stops the countdown and returns the remaining whole seconds, or 0
// when nothing is running.
func (t *Timer) Pause() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	remaining := wholeSeconds(t.targetEnd.Sub(t.clock.Now()))
	t.stopLocked()
	return remaining
}

// Running reports whether a countdown is armed.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the whole seconds left, or 0 when stopped.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return wholeSeconds(t.targetEnd.Sub(t.clock.Now()))
}

func (t *Timer) validate() error {
	if t.clock == nil {
		return ErrNoClock
	}
	if t.dispatch == nil {
		return ErrNoDispatcher
	}
	if t.poll <= 0 || t.poll > time.Second {
		return ErrInvalidPoll
	}
	return nil
}

func (t *Timer) stopLocked() {
	if !t.running {
		return
	}
	t.gen++
	t.running = false
	t.targetEnd = time.Time{}
	close(t.done)
	t.done = nil
}

func (t *Timer) run(gen uint64, target time.Time, last int, ticker clock.Ticker, done <-chan struct{}, onTick func(int), onElapsed func()) {
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			remaining := wholeSeconds(target.Sub(t.clock.Now()))
			if remaining == 0 {
				t.dispatch(func() {
					if t.finish(gen) && onElapsed != nil {
						onElapsed()
					}
				})
				return
			}
			if remaining == last {
				continue
			}
			last = remaining
			t.dispatch(func() {
				if t.current(gen) && onTick != nil {
					onTick(remaining)
				}
			})
		}
	}
}

// current reports whether gen is still the live run.
func (t *Timer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && t.gen == gen
}

// finish retires the live run when gen still owns it.
func (t *Timer) finish(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.gen != gen {
		return false
	}
	t.stopLocked()
	return true
}

// wholeSeconds rounds up so a countdown only reports 0 once it has fully
// elapsed.
func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
