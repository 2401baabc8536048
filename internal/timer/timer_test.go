package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"focusloop/internal/clock"
)

// serialLoop runs dispatched callbacks one at a time on its own goroutine,
// standing in for the controller's event loop.
type serialLoop struct {
	tasks chan func()
}

func newSerialLoop(t *testing.T) *serialLoop {
	l := &serialLoop{tasks: make(chan func(), 64)}
	go func() {
		for fn := range l.tasks {
			fn()
		}
	}()
	t.Cleanup(func() { close(l.tasks) })
	return l
}

func (l *serialLoop) dispatch(fn func()) {
	l.tasks <- fn
}

// do runs fn on the loop and waits for it.
func (l *serialLoop) do(fn func()) {
	done := make(chan struct{})
	l.tasks <- func() {
		fn()
		close(done)
	}
	<-done
}

type recorder struct {
	mu      sync.Mutex
	ticks   []int
	elapsed int
}

func (r *recorder) onTick(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *recorder) onElapsed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed++
}

func (r *recorder) Ticks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...)
}

func (r *recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// --- Test Suite Setup ---

type TimerTestSuite struct {
	suite.Suite
	assert *assert.Assertions
	clock  *clock.Fake
	loop   *serialLoop
	timer  *Timer
	rec    *recorder
}

func (suite *TimerTestSuite) SetupTest() {
	suite.assert = assert.New(suite.T())
	suite.clock = clock.NewFake(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	suite.loop = newSerialLoop(suite.T())
	suite.timer = New(suite.clock, DefaultPollInterval, suite.loop.dispatch)
	suite.rec = &recorder{}
}

func (suite *TimerTestSuite) TearDownTest() {
	suite.timer.Stop()
}

func (suite *TimerTestSuite) start(seconds int) {
	suite.loop.do(func() {
		suite.Require().NoError(suite.timer.Start(seconds, suite.rec.onTick, suite.rec.onElapsed))
	})
}

// advance walks the fake clock forward in poll-sized steps.
func (suite *TimerTestSuite) advance(total time.Duration, step time.Duration) {
	for moved := time.Duration(0); moved < total; moved += step {
		d := step
		if total-moved < step {
			d = total - moved
		}
		suite.clock.Advance(d)
		time.Sleep(time.Millisecond)
	}
}

// settle gives the poll goroutine and the loop time to drain.
func (suite *TimerTestSuite) settle() {
	time.Sleep(30 * time.Millisecond)
	suite.loop.do(func() {})
}

// --- Test Cases ---

func (suite *TimerTestSuite) TestStartTicksImmediately() {
	suite.start(10)

	suite.assert.Equal([]int{10}, suite.rec.Ticks(), "initial tick should be delivered synchronously")
	suite.assert.True(suite.timer.Running())
	suite.assert.Equal(10, suite.timer.Remaining())
}

func (suite *TimerTestSuite) TestTicksOnlyWhenWholeSecondChanges() {
	suite.start(3)

	suite.advance(900*time.Millisecond, DefaultPollInterval)
	suite.settle()
	suite.assert.Equal([]int{3}, suite.rec.Ticks(), "sub-second polls must not emit duplicate ticks")

	suite.advance(100*time.Millisecond, DefaultPollInterval)
	suite.assert.Eventually(func() bool {
		ticks := suite.rec.Ticks()
		return len(ticks) == 2 && ticks[1] == 2
	}, time.Second, 5*time.Millisecond)
}

func (suite *TimerTestSuite) TestElapsedFiresOnceAndStops() {
	suite.start(2)

	suite.advance(2*time.Second, DefaultPollInterval)
	suite.assert.Eventually(func() bool { return suite.rec.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
	suite.assert.False(suite.timer.Running(), "timer should stop itself after elapsing")

	suite.advance(3*time.Second, DefaultPollInterval)
	suite.settle()
	suite.assert.Equal(1, suite.rec.Elapsed(), "elapsed must fire exactly once")
	suite.assert.Eventually(func() bool { return suite.clock.Tickers() == 0 }, time.Second, 5*time.Millisecond)
}

func (suite *TimerTestSuite) TestStopPreventsFurtherCallbacks() {
	suite.start(1)
	suite.loop.do(suite.timer.Stop)
	suite.loop.do(suite.timer.Stop)

	suite.advance(5*time.Second, DefaultPollInterval)
	suite.settle()

	suite.assert.Equal([]int{1}, suite.rec.Ticks())
	suite.assert.Equal(0, suite.rec.Elapsed())
	suite.assert.False(suite.timer.Running())
}

func (suite *TimerTestSuite) TestStopDropsAlreadyQueuedCallback() {
	var queued []func()
	var mu sync.Mutex
	hold := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		queued = append(queued, fn)
	}
	held := New(suite.clock, DefaultPollInterval, hold)
	suite.Require().NoError(held.Start(1, suite.rec.onTick, suite.rec.onElapsed))

	suite.clock.Advance(time.Second)
	suite.assert.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queued) == 1
	}, time.Second, 5*time.Millisecond, "elapsed callback should be queued on the dispatcher")

	held.Stop()
	mu.Lock()
	for _, fn := range queued {
		fn()
	}
	mu.Unlock()

	suite.assert.Equal(0, suite.rec.Elapsed(), "a callback queued before Stop must not fire after it")
}

func (suite *TimerTestSuite) TestPauseReturnsRemaining() {
	suite.start(10)
	suite.advance(3500*time.Millisecond, DefaultPollInterval)

	var remaining int
	suite.loop.do(func() { remaining = suite.timer.Pause() })
	suite.assert.Equal(7, remaining)
	suite.assert.False(suite.timer.Running())

	suite.loop.do(func() { remaining = suite.timer.Pause() })
	suite.assert.Equal(0, remaining, "pausing a stopped timer returns 0")
}

func (suite *TimerTestSuite) TestPauseResumeRoundTrip() {
	suite.start(10)
	suite.advance(3*time.Second, DefaultPollInterval)

	var remaining int
	suite.loop.do(func() { remaining = suite.timer.Pause() })
	suite.Require().Equal(7, remaining)

	// Time spent paused must not count.
	suite.clock.Advance(time.Hour)

	suite.loop.do(func() {
		suite.Require().NoError(suite.timer.Resume(remaining, suite.rec.onTick, suite.rec.onElapsed))
	})
	suite.advance(6900*time.Millisecond, DefaultPollInterval)
	suite.settle()
	suite.assert.Equal(0, suite.rec.Elapsed(), "countdown should not elapse before the resumed remainder")

	suite.advance(100*time.Millisecond, DefaultPollInterval)
	suite.assert.Eventually(func() bool { return suite.rec.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
}

func (suite *TimerTestSuite) TestStartReplacesRunningCountdown() {
	first := &recorder{}
	suite.loop.do(func() {
		suite.Require().NoError(suite.timer.Start(5, first.onTick, first.onElapsed))
		suite.Require().NoError(suite.timer.Start(2, suite.rec.onTick, suite.rec.onElapsed))
	})

	suite.advance(6*time.Second, DefaultPollInterval)
	suite.assert.Eventually(func() bool { return suite.rec.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
	suite.settle()
	suite.assert.Equal(0, first.Elapsed(), "superseded run must never elapse")
	suite.assert.Equal([]int{5}, first.Ticks())
}

func (suite *TimerTestSuite) TestNoDriftWithJitteryPolling() {
	suite.start(60)

	// Steps that never line up with the poll interval.
	suite.advance(59900*time.Millisecond, 130*time.Millisecond)
	suite.settle()
	suite.assert.Equal(0, suite.rec.Elapsed())

	suite.advance(100*time.Millisecond, 100*time.Millisecond)
	suite.assert.Eventually(func() bool { return suite.rec.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
}

func (suite *TimerTestSuite) TestZeroDurationElapsesOnFirstPoll() {
	suite.start(0)
	suite.assert.Equal([]int{0}, suite.rec.Ticks())

	suite.advance(DefaultPollInterval, DefaultPollInterval)
	suite.assert.Eventually(func() bool { return suite.rec.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
}

// --- Test Runner ---

func TestTimerSuite(t *testing.T) {
	suite.Run(t, new(TimerTestSuite))
}

func TestStartRejectsBadConfiguration(t *testing.T) {
	fake := clock.NewFake(time.Now())
	noop := func(fn func()) { fn() }

	assert.ErrorIs(t, New(fake, 0, noop).Start(1, nil, nil), ErrInvalidPoll)
	assert.ErrorIs(t, New(fake, 2*time.Second, noop).Start(1, nil, nil), ErrInvalidPoll)
	assert.ErrorIs(t, New(fake, DefaultPollInterval, nil).Start(1, nil, nil), ErrNoDispatcher)
	assert.ErrorIs(t, New(nil, DefaultPollInterval, noop).Start(1, nil, nil), ErrNoClock)
}

func TestWholeSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 0, wholeSeconds(0))
	assert.Equal(t, 0, wholeSeconds(-time.Second))
	assert.Equal(t, 1, wholeSeconds(time.Millisecond))
	assert.Equal(t, 1, wholeSeconds(time.Second))
	assert.Equal(t, 2, wholeSeconds(1001*time.Millisecond))
}
