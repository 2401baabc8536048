// Package controller owns the single focus/rest cycle. Every event is
// handled on the goroutine running Run; the countdown, the prompter and the
// notifier hand their results back through the same task queue.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"focusloop/internal/clock"
	"focusloop/internal/cycle"
	"focusloop/internal/event"
	"focusloop/internal/notify"
	"focusloop/internal/prompt"
	"focusloop/internal/timer"
)

var (
	// ErrClosed is returned by calls made after Run has returned.
	ErrClosed = errors.New("controller: closed")
	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("controller: already running")
)

const (
	taskBuffer    = 64
	ioTimeout     = 2 * time.Second
	notifyTimeout = 15 * time.Second
)

// Update is published to subscribers after every transition and every
// countdown tick. Transition is empty for ticks.
type Update struct {
	Phase      cycle.Phase
	Completed  int
	Remaining  int
	Transition string
	Cause      cycle.EventKind
	CycleID    string
	At         time.Time
}

type Controller struct {
	clock    clock.Clock
	poll     time.Duration
	store    Store
	history  History
	prompter Prompter
	notifier Notifier
	log      zerolog.Logger

	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
	running  atomic.Bool

	// Owned by the Run goroutine.
	ctx            context.Context
	machine        *cycle.Machine
	timer          *timer.Timer
	pending        *cycle.Settings
	cycleID        string
	deferArmed     bool
	deferRemaining int
	promptSeq      uint64
	promptCancel   context.CancelFunc
	awaiting       bool
	fatal          error
	bg             conc.WaitGroup

	subMu      sync.Mutex
	subs       []chan Update
	subsClosed bool
}

// New builds a controller with settings as the initial cycle settings.
// Collaborators default to no-ops.
func New(settings cycle.Settings, opts ...Option) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		clock:    clock.Real(),
		poll:     timer.DefaultPollInterval,
		store:    nopStore{},
		history:  nopHistory{},
		prompter: nopPrompter{},
		notifier: nopNotifier{},
		log:      zerolog.Nop(),
		tasks:    make(chan func(), taskBuffer),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		machine:  cycle.NewMachine(settings),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timer = timer.New(c.clock, c.poll, c.enqueue)
	return c, nil
}

// Run restores the last snapshot and handles events until ctx is done. It
// returns nil on cancellation and an error when the countdown cannot be
// scheduled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = runCtx

	c.restore()
	for c.fatal == nil {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case fn := <-c.tasks:
			fn()
		}
	}
	c.log.Error().Err(c.fatal).Msg("Controller cannot make progress")
	c.shutdown()
	return c.fatal
}

// Dispatch handles e and returns the resulting status. Events that do not
// apply to the current phase are ignored.
func (c *Controller) Dispatch(ctx context.Context, e cycle.Event) (Status, error) {
	st, _, err := c.Apply(ctx, e)
	return st, err
}

// Apply is Dispatch that also reports whether e changed the phase. Both
// results come from the same step of the Run loop.
func (c *Controller) Apply(ctx context.Context, e cycle.Event) (st Status, changed bool, err error) {
	err = c.call(ctx, func() {
		changed = c.handle(e)
		st = c.status()
	})
	return st, changed, err
}

// Status reports the current phase.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, func() { st = c.status() })
	return st, err
}

// Settings returns the active settings.
func (c *Controller) Settings(ctx context.Context) (cycle.Settings, error) {
	var s cycle.Settings
	err := c.call(ctx, func() { s = c.machine.Settings() })
	return s, err
}

// UpdateSettings replaces the settings. While a cycle is running the new
// settings are held and applied on the next return to idle; applied reports
// which happened.
func (c *Controller) UpdateSettings(ctx context.Context, s cycle.Settings) (applied bool, err error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	s = s.Clone()
	callErr := c.call(ctx, func() {
		if c.machine.Phase().Kind() != cycle.KindIdle {
			c.pending = &s
			c.log.Info().Str("phase", string(c.machine.Phase().Kind())).Msg("Settings deferred until idle")
			return
		}
		if err = c.machine.SetSettings(s); err != nil {
			return
		}
		c.pending = nil
		applied = true
		c.persist()
		c.log.Info().Int("focus_seconds", s.FocusSeconds).Msg("Settings applied")
	})
	if callErr != nil {
		return false, callErr
	}
	return applied, err
}

// Subscribe returns a channel of updates. Sends never block; a full buffer
// drops the update. The channel is closed when Run returns.
func (c *Controller) Subscribe(buffer int) <-chan Update {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subsClosed {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

func (c *Controller) publish(u Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subsClosed {
		return
	}
	c.subsClosed = true
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// enqueue is the timer's Dispatcher. Work posted after shutdown is dropped.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.done:
	}
}

// call runs fn on the Run goroutine and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	task := func() {
		fn()
		close(reply)
	}
	select {
	case c.tasks <- task:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-c.done:
		select {
		case <-reply:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) handle(e cycle.Event) bool {
	if e.Kind == cycle.EventPause {
		c.freeze()
	}
	prev := c.machine.Phase()
	r := c.machine.Handle(e)
	if !r.Changed(prev) {
		c.unchanged(prev, e)
		return false
	}
	c.apply(prev, r, e)
	return true
}

// freeze copies the live remaining time of a running countdown into the
// machine so a pause keeps it.
func (c *Controller) freeze() {
	_, _, paused, ok := cycle.Countdown(c.machine.Phase())
	if !ok || paused || !c.timer.Running() {
		return
	}
	c.machine.Tick(c.timer.Pause())
}

func (c *Controller) unchanged(cur cycle.Phase, e cycle.Event) {
	d, ok := cur.(cycle.Deferral)
	if !ok || e.Kind != cycle.EventElapsed {
		c.log.Debug().Str("phase", string(cur.Kind())).Str("event", e.String()).Msg("Event ignored")
		return
	}
	// A deferral ran out below the ceiling: ask again.
	c.deferArmed, c.deferRemaining = false, 0
	c.log.Info().Int("count", d.Count).Int("max", d.Max).Msg("Deferral over")
	c.notifyAsync(c.notifier.DeferralWarning, c.notice(d))
	c.requestPrompt(d)
	c.publish(c.update("", e.Kind))
}

func (c *Controller) apply(prev cycle.Phase, r cycle.Result, e cycle.Event) {
	next := r.Phase
	entered := prev.Kind() != next.Kind()
	now := c.clock.Now()

	c.cancelPrompt()
	c.disarm()

	if entered && next.Kind() == cycle.KindFocus {
		c.cycleID = uuid.NewString()
	}

	switch p := next.(type) {
	case cycle.Focus:
		if !p.Paused {
			c.arm(p.Remaining)
		}
	case cycle.Deferral:
		if entered {
			c.notifyAsync(c.notifier.FocusComplete, c.notice(p))
		}
		if e.Kind == cycle.EventDefer {
			c.armDeferral(e.Seconds)
		}
	case cycle.Rest:
		if entered {
			c.notifyAsync(c.notifier.RestStarted, c.notice(p))
		}
		if !p.Paused {
			c.arm(p.Remaining)
		}
	}
	if r.Completed {
		c.notifyAsync(c.notifier.RestComplete, c.notice(prev))
	}

	tag := event.PhaseTag(string(prev.Kind()), string(next.Kind()))
	c.log.Info().
		Str("transition", tag).
		Str("cause", e.String()).
		Int("completed", c.machine.Completed()).
		Str("cycle_id", c.cycleID).
		Msg("Phase changed")
	c.record(prev, next, e, now)

	if next.Kind() == cycle.KindIdle {
		c.cycleID = ""
		c.applyPending()
	}
	c.persist()
	c.publish(c.update(tag, e.Kind))

	if d, ok := next.(cycle.Deferral); ok && e.Kind != cycle.EventDefer {
		c.awaitChoice(d)
	}
}

// awaitChoice asks the user to rest or defer, or forces rest once the
// deferral ceiling is reached.
func (c *Controller) awaitChoice(d cycle.Deferral) {
	if d.AtCeiling() {
		c.handle(cycle.On(cycle.EventElapsed))
		return
	}
	c.requestPrompt(d)
}

func (c *Controller) applyPending() {
	if c.pending == nil {
		return
	}
	s := *c.pending
	c.pending = nil
	if err := c.machine.SetSettings(s); err != nil {
		c.log.Warn().Err(err).Msg("Dropping pending settings")
		return
	}
	c.log.Info().Int("focus_seconds", s.FocusSeconds).Msg("Pending settings applied")
}

func (c *Controller) arm(seconds int) {
	err := c.timer.Start(seconds, c.tick, func() {
		c.handle(cycle.On(cycle.EventElapsed))
	})
	c.check(err)
}

func (c *Controller) armDeferral(seconds int) {
	c.deferArmed, c.deferRemaining = true, seconds
	err := c.timer.Start(seconds, func(remaining int) {
		if c.deferRemaining == remaining {
			return
		}
		c.deferRemaining = remaining
		c.publish(c.update("", ""))
	}, func() {
		c.handle(cycle.On(cycle.EventElapsed))
	})
	c.check(err)
}

func (c *Controller) tick(remaining int) {
	cur, _, _, ok := cycle.Countdown(c.machine.Phase())
	if !ok || cur == remaining {
		return
	}
	c.machine.Tick(remaining)
	c.publish(c.update("", ""))
}

func (c *Controller) disarm() {
	c.timer.Stop()
	c.deferArmed, c.deferRemaining = false, 0
}

func (c *Controller) check(err error) {
	if err != nil && c.fatal == nil {
		c.fatal = fmt.Errorf("arm countdown: %w", err)
	}
}

func (c *Controller) requestPrompt(d cycle.Deferral) {
	c.cancelPrompt()
	c.promptSeq++
	seq := c.promptSeq
	ctx, cancel := context.WithCancel(c.ctx)
	c.promptCancel = cancel
	c.awaiting = true

	req := prompt.Request{
		Seq:           seq,
		CycleID:       c.cycleID,
		DeferralCount: d.Count,
		MaxDeferrals:  d.Max,
		Accumulated:   d.Accumulated,
		Options:       c.machine.Settings().DeferralOptions,
		AskedAt:       c.clock.Now(),
	}
	c.bg.Go(func() {
		choice, err := c.prompter.Prompt(ctx, req)
		c.enqueue(func() { c.answered(seq, choice, err) })
	})
}

func (c *Controller) answered(seq uint64, choice cycle.Event, err error) {
	if seq != c.promptSeq || !c.awaiting {
		return
	}
	c.cancelPrompt()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("Prompt failed")
		}
		return
	}
	if err := prompt.ValidChoice(choice); err != nil {
		c.log.Warn().Err(err).Msg("Ignoring prompt answer")
		return
	}
	c.handle(choice)
}

func (c *Controller) cancelPrompt() {
	if c.promptCancel != nil {
		c.promptCancel()
		c.promptCancel = nil
	}
	c.awaiting = false
}

func (c *Controller) notifyAsync(send func(context.Context, notify.Notice), n notify.Notice) {
	base := context.WithoutCancel(c.ctx)
	c.bg.Go(func() {
		ctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		send(ctx, n)
	})
}

func (c *Controller) notice(p cycle.Phase) notify.Notice {
	n := notify.Notice{
		CycleID:   c.cycleID,
		Completed: c.machine.Completed(),
		At:        c.clock.Now(),
	}
	switch cur := p.(type) {
	case cycle.Deferral:
		n.DeferralCount, n.MaxDeferrals = cur.Count, cur.Max
	case cycle.Rest:
		n.RestSeconds, n.Extended = cur.Total, cur.Extended
	}
	return n
}

func (c *Controller) ioContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.ctx), ioTimeout)
}

func (c *Controller) persist() {
	snap := cycle.Snapshot{
		Phase:     c.machine.Phase(),
		Completed: c.machine.Completed(),
		Settings:  c.machine.Settings(),
		CycleID:   c.cycleID,
		SavedAt:   c.clock.Now(),
	}
	ctx, cancel := c.ioContext()
	defer cancel()
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		c.log.Warn().Err(err).Msg("Failed to save snapshot")
	}
}

func (c *Controller) record(prev, next cycle.Phase, e cycle.Event, at time.Time) {
	row := event.Event{
		Timestamp: at,
		Type:      event.EventTypePhase,
		Tag:       event.PhaseTag(string(prev.Kind()), string(next.Kind())),
		Notes:     string(e.Kind),
		Value:     float64(transitionSeconds(prev, next, e)),
		CycleID:   c.cycleID,
	}
	ctx, cancel := c.ioContext()
	defer cancel()
	if _, err := c.history.SaveEvent(ctx, row); err != nil {
		c.log.Warn().Err(err).Str("transition", row.Tag).Msg("Failed to record transition")
	}
}

// transitionSeconds is the duration a history row carries: planned or
// spent focus, the deferred amount, or rest length.
func transitionSeconds(prev, next cycle.Phase, e cycle.Event) int {
	switch p := prev.(type) {
	case cycle.Idle:
		if f, ok := next.(cycle.Focus); ok {
			return f.Total
		}
	case cycle.Focus:
		switch next.(type) {
		case cycle.Deferral:
			return p.Total
		case cycle.Idle:
			return p.Total - p.Remaining
		}
		return p.Remaining
	case cycle.Deferral:
		switch n := next.(type) {
		case cycle.Deferral:
			return e.Seconds
		case cycle.Rest:
			return n.Total
		}
		return p.Accumulated
	case cycle.Rest:
		if _, ok := next.(cycle.Idle); !ok {
			return p.Remaining
		}
		if e.Kind == cycle.EventElapsed {
			return p.Total
		}
		return p.Total - p.Remaining
	}
	return 0
}

func (c *Controller) restore() {
	ctx, cancel := c.ioContext()
	snap, ok, err := c.store.LoadSnapshot(ctx)
	cancel()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to load snapshot, starting idle")
		return
	}
	if !ok {
		c.log.Info().Msg("No snapshot found, starting idle")
		return
	}

	phase := snap.Phase
	if phase == nil {
		phase = cycle.Idle{}
	}
	// A cycle in progress keeps the settings it started with.
	if phase.Kind() != cycle.KindIdle && snap.Settings.Validate() == nil {
		configured := c.machine.Settings()
		c.machine = cycle.NewMachine(snap.Settings)
		if !configured.Equal(snap.Settings) {
			c.pending = &configured
		}
	}
	c.machine.Restore(phase, snap.Completed)
	c.cycleID = snap.CycleID
	if phase.Kind() != cycle.KindIdle && c.cycleID == "" {
		c.cycleID = uuid.NewString()
	}
	c.log.Info().
		Str("phase", string(phase.Kind())).
		Int("completed", snap.Completed).
		Time("saved_at", snap.SavedAt).
		Msg("Restored snapshot")

	switch p := c.machine.Phase().(type) {
	case cycle.Focus:
		if !p.Paused {
			c.arm(p.Remaining)
		}
	case cycle.Rest:
		if !p.Paused {
			c.arm(p.Remaining)
		}
	case cycle.Deferral:
		c.awaitChoice(p)
	}
	c.publish(c.update("", ""))
}

func (c *Controller) shutdown() {
	c.cancelPrompt()
	if c.timer.Running() {
		remaining := c.timer.Pause()
		if !c.deferArmed {
			c.machine.Tick(remaining)
		}
	}
	c.deferArmed, c.deferRemaining = false, 0
	c.persist()
	c.doneOnce.Do(func() { close(c.done) })
	c.bg.Wait()
	c.closeSubscribers()
	c.log.Info().Str("phase", string(c.machine.Phase().Kind())).Msg("Controller stopped")
}

func (c *Controller) update(transition string, cause cycle.EventKind) Update {
	return Update{
		Phase:      c.machine.Phase(),
		Completed:  c.machine.Completed(),
		Remaining:  c.remaining(),
		Transition: transition,
		Cause:      cause,
		CycleID:    c.cycleID,
		At:         c.clock.Now(),
	}
}

func (c *Controller) remaining() int {
	if r, _, _, ok := cycle.Countdown(c.machine.Phase()); ok {
		return r
	}
	if c.deferArmed {
		return c.deferRemaining
	}
	return 0
}
