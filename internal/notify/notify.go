// Package notify delivers cycle notifications to the desktop, to a Bark
// push server, to a sound player and to the log.
package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

type Kind string

const (
	KindFocusComplete   Kind = "focus_complete"
	KindRestStarted     Kind = "rest_started"
	KindRestComplete    Kind = "rest_complete"
	KindDeferralWarning Kind = "deferral_warning"
)

// Notice is what every sender receives.
type Notice struct {
	Kind          Kind
	CycleID       string
	Completed     int
	RestSeconds   int
	Extended      bool
	DeferralCount int
	MaxDeferrals  int
	At            time.Time
}

// Sender delivers a single notice.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notice) error
}

// Message is the human readable form of a notice.
type Message struct {
	Title string
	Body  string
}

var deferralWarnings = []string{
	"Still working?",
	"Last warning!",
	"Rest is mandatory now",
}

// Compose renders n for display.
func Compose(n Notice) Message {
	switch n.Kind {
	case KindFocusComplete:
		return Message{
			Title: "Focus complete",
			Body:  "Time for a break. Rest now or defer?",
		}
	case KindRestStarted:
		title := "Rest started"
		if n.Extended {
			title = "Long rest started"
		}
		return Message{Title: title, Body: fmt.Sprintf("Step away for %s.", FormatSeconds(n.RestSeconds))}
	case KindRestComplete:
		title := "Rest over"
		if n.Extended {
			title = "Long rest over"
		}
		return Message{Title: title, Body: fmt.Sprintf("%d cycles done. Ready for the next one?", n.Completed)}
	case KindDeferralWarning:
		i := n.DeferralCount
		if i >= len(deferralWarnings) {
			i = len(deferralWarnings) - 1
		}
		if i < 0 {
			i = 0
		}
		return Message{
			Title: deferralWarnings[i],
			Body:  fmt.Sprintf("Deferral over (%d of %d used). Stop and take a break.", n.DeferralCount, n.MaxDeferrals),
		}
	}
	return Message{Title: string(n.Kind)}
}

// FormatSeconds renders a whole-second duration as "25m", "4m30s" or "45s".
func FormatSeconds(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds%60 == 0 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%dm%ds", seconds/60, seconds%60)
}

// Hub fans each notice out to every sender. Failures are logged and never
// returned; a slow sender only delays itself.
type Hub struct {
	senders []Sender
	log     zerolog.Logger
	timeout time.Duration
}

// NewHub builds a hub over senders.
func NewHub(log zerolog.Logger, senders ...Sender) *Hub {
	return &Hub{
		senders: senders,
		log:     log,
		timeout: 10 * time.Second,
	}
}

func (h *Hub) FocusComplete(ctx context.Context, n Notice) {
	n.Kind = KindFocusComplete
	h.Notify(ctx, n)
}

func (h *Hub) RestStarted(ctx context.Context, n Notice) {
	n.Kind = KindRestStarted
	h.Notify(ctx, n)
}

func (h *Hub) RestComplete(ctx context.Context, n Notice) {
	n.Kind = KindRestComplete
	h.Notify(ctx, n)
}

func (h *Hub) DeferralWarning(ctx context.Context, n Notice) {
	n.Kind = KindDeferralWarning
	h.Notify(ctx, n)
}

// Notify sends n to every sender and waits for them to finish.
func (h *Hub) Notify(ctx context.Context, n Notice) {
	var wg conc.WaitGroup
	for _, s := range h.senders {
		s := s
		wg.Go(func() {
			sendCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			if err := s.Send(sendCtx, n); err != nil {
				h.log.Warn().Err(err).Str("sender", s.Name()).Str("kind", string(n.Kind)).Msg("Notification failed")
				return
			}
			h.log.Debug().Str("sender", s.Name()).Str("kind", string(n.Kind)).Msg("Notification sent")
		})
	}
	wg.Wait()
}

// Close releases senders that hold resources.
func (h *Hub) Close() error {
	var err error
	for _, s := range h.senders {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Log writes notices to a zerolog logger.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, n Notice) error {
	msg := Compose(n)
	l.log.Info().
		Str("kind", string(n.Kind)).
		Str("cycle_id", n.CycleID).
		Str("title", msg.Title).
		Msg(msg.Body)
	return nil
}
