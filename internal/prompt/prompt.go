// Package prompt carries the "rest now or defer?" question from the
// controller to whoever answers it, usually the CLI over the socket.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"focusloop/internal/cycle"
)

var (
	// ErrNoPrompt is returned by Answer when no question is open.
	ErrNoPrompt = errors.New("prompt: no question pending")
	// ErrInvalidChoice is returned for answers other than rest or defer.
	ErrInvalidChoice = errors.New("prompt: answer must be begin_rest or defer")
)

// Request describes one open question.
type Request struct {
	Seq           uint64    `json:"seq" yaml:"seq"`
	CycleID       string    `json:"cycle_id,omitempty" yaml:"cycle_id,omitempty"`
	DeferralCount int       `json:"deferral_count" yaml:"deferral_count"`
	MaxDeferrals  int       `json:"max_deferrals" yaml:"max_deferrals"`
	Accumulated   int       `json:"accumulated" yaml:"accumulated"`
	Options       []int     `json:"options" yaml:"options"`
	AskedAt       time.Time `json:"asked_at" yaml:"asked_at"`
}

// ValidChoice reports whether e answers a prompt.
func ValidChoice(e cycle.Event) error {
	switch e.Kind {
	case cycle.EventBeginRest:
		return nil
	case cycle.EventDefer:
		if e.Seconds < 0 {
			return fmt.Errorf("%w: negative deferral %d", ErrInvalidChoice, e.Seconds)
		}
		return nil
	}
	return fmt.Errorf("%w: got %s", ErrInvalidChoice, e.Kind)
}

type waiter struct {
	req    Request
	answer chan cycle.Event
}

// Mailbox holds at most one open question. Prompt blocks the asking
// goroutine until Answer is called or the context ends.
type Mailbox struct {
	mu      sync.Mutex
	current *waiter
	asked   chan Request
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{asked: make(chan Request, 1)}
}

// Prompt publishes req and waits for an answer. A newer Prompt replaces an
// older one that is still open.
func (m *Mailbox) Prompt(ctx context.Context, req Request) (cycle.Event, error) {
	w := &waiter{req: req, answer: make(chan cycle.Event, 1)}

	m.mu.Lock()
	m.current = w
	// Latest question wins; drop a stale one nobody collected.
	select {
	case <-m.asked:
	default:
	}
	m.asked <- req
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.current == w {
			m.current = nil
		}
		m.mu.Unlock()
	}()

	select {
	case choice := <-w.answer:
		return choice, nil
	case <-ctx.Done():
		return cycle.Event{}, ctx.Err()
	}
}

// Answer resolves the open question.
func (m *Mailbox) Answer(choice cycle.Event) error {
	if err := ValidChoice(choice); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoPrompt
	}
	m.current.answer <- choice
	m.current = nil
	return nil
}

// Pending returns the open question, if any.
func (m *Mailbox) Pending() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Request{}, false
	}
	return m.current.req, true
}

// Asked delivers each new question once. Slow readers only see the latest.
func (m *Mailbox) Asked() <-chan Request {
	return m.asked
}
