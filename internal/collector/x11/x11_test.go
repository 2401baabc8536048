package x11

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"focusloop/internal/event"
)

func TestChangedTreatsEmptyAsUnknown(t *testing.T) {
	assert.False(t, Changed(event.FocusInfo{}, event.FocusInfo{AppName: unknownApp, Title: unknownTitle}))
	assert.False(t, Changed(event.FocusInfo{AppName: "Emacs", Title: "a"}, event.FocusInfo{AppName: "Emacs", Class: "emacs", Title: "a"}))
	assert.True(t, Changed(event.FocusInfo{AppName: "Emacs", Title: "a"}, event.FocusInfo{AppName: "Emacs", Title: "b"}))
	assert.True(t, Changed(event.FocusInfo{AppName: "Emacs"}, event.FocusInfo{AppName: "firefox"}))
}

func TestFocusEvent(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	e := FocusEvent(
		event.FocusInfo{AppName: "Emacs", Title: "notes.org"},
		event.FocusInfo{AppName: "Steam", Class: "steamwebhelper", Title: "Library"},
		at,
	)

	assert.Equal(t, event.EventTypeFocusChange, e.Type)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, "Steam", e.AppName)
	assert.Equal(t, "Library", e.WindowTitle)
	assert.Equal(t, "steamwebhelper", e.Tag)
	assert.Equal(t, "Previous: Emacs - notes.org", e.Notes)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "the quick...", Truncate("the quick brown fox", 12))
}
