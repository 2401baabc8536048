// Package report aggregates history rows into a period summary.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"focusloop/internal/cycle"
	"focusloop/internal/event"
)

const unknownApp = "Unknown/Idle"

// AppTime is the focused wall time of one application.
type AppTime struct {
	App     string `json:"app" yaml:"app"`
	Seconds int    `json:"seconds" yaml:"seconds"`
}

// TagCount counts custom events sharing a tag.
type TagCount struct {
	Tag   string `json:"tag" yaml:"tag"`
	Count int    `json:"count" yaml:"count"`
}

type Summary struct {
	From            time.Time  `json:"from" yaml:"from"`
	To              time.Time  `json:"to" yaml:"to"`
	Started         int        `json:"started" yaml:"started"`
	Completed       int        `json:"completed" yaml:"completed"`
	Abandoned       int        `json:"abandoned" yaml:"abandoned"`
	Interrupts      int        `json:"interrupts" yaml:"interrupts"`
	Deferrals       int        `json:"deferrals" yaml:"deferrals"`
	FocusSeconds    int        `json:"focus_seconds" yaml:"focus_seconds"`
	DeferredSeconds int        `json:"deferred_seconds" yaml:"deferred_seconds"`
	RestSeconds     int        `json:"rest_seconds" yaml:"rest_seconds"`
	Distractions    int        `json:"distractions" yaml:"distractions"`
	Apps            []AppTime  `json:"apps,omitempty" yaml:"apps,omitempty"`
	Custom          []TagCount `json:"custom,omitempty" yaml:"custom,omitempty"`
}

var (
	tagStart         = phaseTag(cycle.KindIdle, cycle.KindFocus)
	tagFocusDone     = phaseTag(cycle.KindFocus, cycle.KindDeferral)
	tagFocusStopped  = phaseTag(cycle.KindFocus, cycle.KindIdle)
	tagDeferred      = phaseTag(cycle.KindDeferral, cycle.KindDeferral)
	tagDeferStopped  = phaseTag(cycle.KindDeferral, cycle.KindIdle)
	tagRestCompleted = phaseTag(cycle.KindRest, cycle.KindIdle)
)

func phaseTag(from, to cycle.Kind) string {
	return event.PhaseTag(string(from), string(to))
}

// Summarize folds events recorded in [from, to) into a Summary. Rows are
// sorted by time first; the input slice is left untouched.
func Summarize(events []event.Event, from, to time.Time) Summary {
	rows := append([]event.Event(nil), events...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	sum := Summary{From: from, To: to}
	appTotal := make(map[string]time.Duration)
	customCounts := make(map[string]int)
	var lastFocus *event.Event

	for i := range rows {
		e := &rows[i]
		switch e.Type {
		case event.EventTypePhase:
			sum.addPhase(e)
		case event.EventTypeFocusChange:
			if lastFocus != nil && !e.Timestamp.Before(lastFocus.Timestamp) {
				appTotal[appName(lastFocus)] += e.Timestamp.Sub(lastFocus.Timestamp)
			}
			lastFocus = e
		case event.EventTypeDistraction:
			sum.Distractions++
		case event.EventTypeCustom:
			customCounts[e.Tag]++
		}
	}
	if lastFocus != nil && to.After(lastFocus.Timestamp) {
		appTotal[appName(lastFocus)] += to.Sub(lastFocus.Timestamp)
	}

	for app, d := range appTotal {
		if secs := int(d / time.Second); secs > 0 {
			sum.Apps = append(sum.Apps, AppTime{App: app, Seconds: secs})
		}
	}
	sort.Slice(sum.Apps, func(i, j int) bool {
		if sum.Apps[i].Seconds != sum.Apps[j].Seconds {
			return sum.Apps[i].Seconds > sum.Apps[j].Seconds
		}
		return sum.Apps[i].App < sum.Apps[j].App
	})
	for tag, n := range customCounts {
		sum.Custom = append(sum.Custom, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(sum.Custom, func(i, j int) bool {
		if sum.Custom[i].Count != sum.Custom[j].Count {
			return sum.Custom[i].Count > sum.Custom[j].Count
		}
		return sum.Custom[i].Tag < sum.Custom[j].Tag
	})
	return sum
}

func (s *Summary) addPhase(e *event.Event) {
	secs := int(e.Value)
	if e.Notes == string(cycle.EventInterrupt) {
		s.Interrupts++
	}
	switch e.Tag {
	case tagStart:
		s.Started++
	case tagFocusDone:
		s.FocusSeconds += secs
	case tagFocusStopped:
		s.FocusSeconds += secs
		s.Abandoned++
	case tagDeferred:
		s.Deferrals++
		s.DeferredSeconds += secs
	case tagDeferStopped:
		s.Abandoned++
	case tagRestCompleted:
		s.Completed++
		s.RestSeconds += secs
	}
}

// CompletedCycles counts rests that ended in a completed cycle.
func CompletedCycles(events []event.Event) int {
	n := 0
	for _, e := range events {
		if e.Type == event.EventTypePhase && e.Tag == tagRestCompleted {
			n++
		}
	}
	return n
}

// StartOfDay is local midnight of t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func appName(e *event.Event) string {
	if e.AppName == "" {
		return unknownApp
	}
	return e.AppName
}

// WriteText renders s for a terminal.
func (s Summary) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s to %s\n", s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "  Cycles:       %d started, %d completed, %d abandoned\n", s.Started, s.Completed, s.Abandoned)
	fmt.Fprintf(&b, "  Focus time:   %s\n", formatDurationHuman(s.FocusSeconds))
	fmt.Fprintf(&b, "  Rest time:    %s\n", formatDurationHuman(s.RestSeconds))
	fmt.Fprintf(&b, "  Deferrals:    %d (%s)\n", s.Deferrals, formatDurationHuman(s.DeferredSeconds))
	fmt.Fprintf(&b, "  Interrupts:   %d\n", s.Interrupts)
	fmt.Fprintf(&b, "  Distractions: %d\n", s.Distractions)
	if len(s.Apps) > 0 {
		b.WriteString("  Apps:\n")
		for _, a := range s.Apps {
			fmt.Fprintf(&b, "    %-24s %s\n", a.App, formatDurationHuman(a.Seconds))
		}
	}
	if len(s.Custom) > 0 {
		b.WriteString("  Events:\n")
		for _, c := range s.Custom {
			fmt.Fprintf(&b, "    %-24s %d\n", c.Tag, c.Count)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatDurationHuman(seconds int) string {
	d := (time.Duration(seconds) * time.Second).Round(time.Minute)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
