package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"focusloop/internal/clock"
	"focusloop/internal/cycle"
	"focusloop/internal/event"
	"focusloop/internal/notify"
	"focusloop/internal/prompt"
)

// Store persists the latest cycle snapshot. Last write wins.
type Store interface {
	SaveSnapshot(ctx context.Context, snap cycle.Snapshot) error
	LoadSnapshot(ctx context.Context) (cycle.Snapshot, bool, error)
}

// History receives one row per transition.
type History interface {
	SaveEvent(ctx context.Context, e event.Event) (int64, error)
}

// Prompter asks the user to rest now or defer. It blocks until answered or
// ctx ends, and returns either a begin_rest or a defer event.
type Prompter interface {
	Prompt(ctx context.Context, req prompt.Request) (cycle.Event, error)
}

// Notifier is told about cycle milestones. Calls are fire-and-forget and
// run off the controller goroutine.
type Notifier interface {
	FocusComplete(ctx context.Context, n notify.Notice)
	RestStarted(ctx context.Context, n notify.Notice)
	RestComplete(ctx context.Context, n notify.Notice)
	DeferralWarning(ctx context.Context, n notify.Notice)
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

func WithStore(s Store) Option {
	return func(c *Controller) { c.store = s }
}

func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

func WithPrompter(p Prompter) Option {
	return func(c *Controller) { c.prompter = p }
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithPollInterval overrides the timer poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.poll = d }
}

type nopStore struct{}

func (nopStore) SaveSnapshot(context.Context, cycle.Snapshot) error { return nil }
func (nopStore) LoadSnapshot(context.Context) (cycle.Snapshot, bool, error) {
	return cycle.Snapshot{}, false, nil
}

type nopHistory struct{}

func (nopHistory) SaveEvent(context.Context, event.Event) (int64, error) { return 0, nil }

// nopPrompter never answers; choices then arrive through Dispatch.
type nopPrompter struct{}

func (nopPrompter) Prompt(ctx context.Context, _ prompt.Request) (cycle.Event, error) {
	<-ctx.Done()
	return cycle.Event{}, ctx.Err()
}

type nopNotifier struct{}

func (nopNotifier) FocusComplete(context.Context, notify.Notice)   {}
func (nopNotifier) RestStarted(context.Context, notify.Notice)     {}
func (nopNotifier) RestComplete(context.Context, notify.Notice)    {}
func (nopNotifier) DeferralWarning(context.Context, notify.Notice) {}
