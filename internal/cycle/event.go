package cycle

import "fmt"

// EventKind names an input to the machine.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventStop      EventKind = "stop"
	EventPause     EventKind = "pause"
	EventResume    EventKind = "resume"
	EventElapsed   EventKind = "elapsed"
	EventDefer     EventKind = "defer"
	EventBeginRest EventKind = "begin_rest"
	EventInterrupt EventKind = "interrupt"
)

// Event is an input to Transition. Seconds is only read for EventDefer.
type Event struct {
	Kind    EventKind `json:"kind"`
	Seconds int       `json:"seconds,omitempty"`
}

// Defer builds a deferral request of seconds.
func Defer(seconds int) Event {
	return Event{Kind: EventDefer, Seconds: seconds}
}

// On builds an event that carries no payload.
func On(kind EventKind) Event {
	return Event{Kind: kind}
}

func (e Event) String() string {
	if e.Kind == EventDefer {
		return fmt.Sprintf("defer(%ds)", e.Seconds)
	}
	return string(e.Kind)
}

// ParseEventKind maps a wire name onto a known kind.
func ParseEventKind(name string) (EventKind, error) {
	switch k := EventKind(name); k {
	case EventStart, EventStop, EventPause, EventResume, EventElapsed, EventDefer, EventBeginRest, EventInterrupt:
		return k, nil
	}
	return "", fmt.Errorf("unknown event %q", name)
}
