package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusloop/internal/event"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func phaseRow(minutes int, tag, cause string, seconds float64) event.Event {
	return event.Event{Timestamp: at(minutes), Type: event.EventTypePhase, Tag: tag, Notes: cause, Value: seconds, CycleID: "c"}
}

func TestSummarizeCycles(t *testing.T) {
	events := []event.Event{
		// Completed after one 5 minute deferral.
		phaseRow(0, "idle>focus", "start", 1500),
		phaseRow(25, "focus>deferral", "elapsed", 1500),
		phaseRow(26, "deferral>deferral", "defer", 300),
		phaseRow(31, "deferral>rest", "begin_rest", 360),
		phaseRow(37, "rest>idle", "elapsed", 360),
		// Interrupted after ten minutes.
		phaseRow(40, "idle>focus", "start", 1500),
		phaseRow(50, "focus>idle", "interrupt", 600),
		// Rest cut short still completes.
		phaseRow(60, "idle>focus", "start", 1500),
		phaseRow(85, "focus>deferral", "elapsed", 1500),
		phaseRow(86, "deferral>rest", "begin_rest", 300),
		phaseRow(88, "rest>idle", "stop", 120),
	}

	sum := Summarize(events, base, at(120))

	assert.Equal(t, 3, sum.Started)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.Abandoned)
	assert.Equal(t, 1, sum.Interrupts)
	assert.Equal(t, 1, sum.Deferrals)
	assert.Equal(t, 300, sum.DeferredSeconds)
	assert.Equal(t, 1500+600+1500, sum.FocusSeconds)
	assert.Equal(t, 360+120, sum.RestSeconds)
	assert.Equal(t, 2, CompletedCycles(events))
}

func TestSummarizeAppsAndCustom(t *testing.T) {
	events := []event.Event{
		{Timestamp: at(30), Type: event.EventTypeFocusChange, AppName: "Emacs"},
		{Timestamp: at(0), Type: event.EventTypeFocusChange, AppName: "firefox"},
		{Timestamp: at(40), Type: event.EventTypeFocusChange, AppName: ""},
		{Timestamp: at(45), Type: event.EventTypeDistraction, AppName: "Steam"},
		{Timestamp: at(46), Type: event.EventTypeCustom, Tag: "coffee"},
		{Timestamp: at(47), Type: event.EventTypeCustom, Tag: "water"},
		{Timestamp: at(48), Type: event.EventTypeCustom, Tag: "coffee"},
	}
	original := append([]event.Event(nil), events...)

	sum := Summarize(events, base, at(60))

	assert.Equal(t, []AppTime{
		{App: "firefox", Seconds: 1800},
		{App: unknownApp, Seconds: 1200},
		{App: "Emacs", Seconds: 600},
	}, sum.Apps)
	assert.Equal(t, []TagCount{{Tag: "coffee", Count: 2}, {Tag: "water", Count: 1}}, sum.Custom)
	assert.Equal(t, 1, sum.Distractions)
	assert.Equal(t, original, events, "input must not be reordered")
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, base, at(60))
	assert.Zero(t, sum.Completed)
	assert.Empty(t, sum.Apps)
	assert.Empty(t, sum.Custom)
}

func TestWriteText(t *testing.T) {
	sum := Summary{
		From: base, To: at(24 * 60),
		Started: 2, Completed: 1, FocusSeconds: 3000, RestSeconds: 300,
		Apps: []AppTime{{App: "Emacs", Seconds: 3900}},
	}
	var buf bytes.Buffer
	require.NoError(t, sum.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "2 started, 1 completed, 0 abandoned")
	assert.Contains(t, out, "Focus time:   50m")
	assert.Contains(t, out, "1h 5m")
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got := StartOfDay(time.Date(2025, 3, 10, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc), got)
}
