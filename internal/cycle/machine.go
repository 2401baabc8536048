package cycle

import "errors"

// ErrNotIdle is returned when settings are swapped mid-cycle.
var ErrNotIdle = errors.New("cycle: settings can only change while idle")

// Machine holds the current phase, the completed count and the settings.
// It is not safe for concurrent use; the controller owns it.
type Machine struct {
	phase     Phase
	completed int
	settings  Settings
}

// NewMachine starts Idle with no completed intervals.
func NewMachine(s Settings) *Machine {
	return &Machine{phase: Idle{}, settings: s.Clone()}
}

// Handle applies e and returns the transition result.
func (m *Machine) Handle(e Event) Result {
	r := Transition(m.phase, m.completed, m.settings, e)
	m.phase = r.Phase
	if r.Completed {
		m.completed++
	}
	return r
}

// Tick records the UI-facing remaining time of the current Focus or Rest.
// It never runs a transition. It reports whether a timed phase was updated.
func (m *Machine) Tick(remaining int) bool {
	switch cur := m.phase.(type) {
	case Focus:
		cur.Remaining = clamp(remaining, cur.Total)
		m.phase = cur
	case Rest:
		cur.Remaining = clamp(remaining, cur.Total)
		m.phase = cur
	default:
		return false
	}
	return true
}

// Restore replaces the state with a persisted snapshot.
func (m *Machine) Restore(p Phase, completed int) {
	if completed < 0 {
		completed = 0
	}
	switch cur := p.(type) {
	case Focus:
		cur.Remaining = clamp(cur.Remaining, cur.Total)
		p = cur
	case Rest:
		cur.Remaining = clamp(cur.Remaining, cur.Total)
		p = cur
	case Deferral:
		if cur.Count > cur.Max {
			cur.Count = cur.Max
		}
		p = cur
	case nil:
		p = Idle{}
	}
	m.phase = p
	m.completed = completed
}

// SetSettings swaps the settings. It fails with ErrNotIdle mid-cycle.
func (m *Machine) SetSettings(s Settings) error {
	if m.phase.Kind() != KindIdle {
		return ErrNotIdle
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings = s.Clone()
	return nil
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) Completed() int {
	return m.completed
}

func (m *Machine) Settings() Settings {
	return m.settings.Clone()
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
