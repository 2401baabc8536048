package event

import "time"

type EventType string

const (
	EventTypeFocusChange EventType = "focus_change"
	EventTypeCustom      EventType = "custom"
	EventTypePhase       EventType = "phase"     // One row per cycle transition
	EventTypeDistraction EventType = "distraction"
	EventTypeAppStart    EventType = "app_start"
	EventTypeAppStop     EventType = "app_stop"
)

// Event structure to store in DB
type Event struct {
	ID          int64     `db:"id" json:"id" yaml:"id"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp" yaml:"timestamp"`
	Type        EventType `db:"type" json:"type" yaml:"type"`
	AppName     string    `db:"app_name" json:"app_name,omitempty" yaml:"app_name,omitempty"`             // For focus_change
	WindowTitle string    `db:"window_title" json:"window_title,omitempty" yaml:"window_title,omitempty"` // For focus_change
	Value       float64   `db:"value" json:"value,omitempty" yaml:"value,omitempty"`                      // Seconds for phase rows
	Tag         string    `db:"tag" json:"tag,omitempty" yaml:"tag,omitempty"`                            // Transition ("focus>deferral") or custom tag
	Notes       string    `db:"notes" json:"notes,omitempty" yaml:"notes,omitempty"`                      // Cause of a transition, or free text
	CycleID     string    `db:"cycle_id" json:"cycle_id,omitempty" yaml:"cycle_id,omitempty"`
}

// PhaseTag names a transition row, e.g. "rest>idle".
func PhaseTag(from, to string) string {
	return from + ">" + to
}

// Used for communication channels
type FocusInfo struct {
	AppName string
	Class   string
	Title   string
}
