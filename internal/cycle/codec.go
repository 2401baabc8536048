package cycle

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the persisted form of a Phase: {"kind":"focus","focus":{...}}.
type envelope struct {
	Kind     Kind      `json:"kind"`
	Focus    *Focus    `json:"focus,omitempty"`
	Deferral *Deferral `json:"deferral,omitempty"`
	Rest     *Rest     `json:"rest,omitempty"`
}

// MarshalPhase encodes p with its kind tag.
func MarshalPhase(p Phase) ([]byte, error) {
	env := envelope{Kind: KindIdle}
	switch cur := p.(type) {
	case Focus:
		env.Kind, env.Focus = KindFocus, &cur
	case Deferral:
		env.Kind, env.Deferral = KindDeferral, &cur
	case Rest:
		env.Kind, env.Rest = KindRest, &cur
	case Idle, nil:
	default:
		return nil, fmt.Errorf("marshal phase: unknown phase %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalPhase decodes a phase written by MarshalPhase.
func UnmarshalPhase(data []byte) (Phase, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal phase: %w", err)
	}
	switch env.Kind {
	case KindIdle:
		return Idle{}, nil
	case KindFocus:
		if env.Focus == nil {
			return nil, fmt.Errorf("unmarshal phase: missing %q body", env.Kind)
		}
		return *env.Focus, nil
	case KindDeferral:
		if env.Deferral == nil {
			return nil, fmt.Errorf("unmarshal phase: missing %q body", env.Kind)
		}
		return *env.Deferral, nil
	case KindRest:
		if env.Rest == nil {
			return nil, fmt.Errorf("unmarshal phase: missing %q body", env.Kind)
		}
		return *env.Rest, nil
	}
	return nil, fmt.Errorf("unmarshal phase: unknown kind %q", env.Kind)
}

// Snapshot is what the controller persists after every change.
type Snapshot struct {
	Phase     Phase
	Completed int
	Settings  Settings
	CycleID   string
	SavedAt   time.Time
}

type snapshotJSON struct {
	Phase     json.RawMessage `json:"phase"`
	Completed int             `json:"completed"`
	Settings  Settings        `json:"settings"`
	CycleID   string          `json:"cycle_id,omitempty"`
	SavedAt   time.Time       `json:"saved_at"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	phase, err := MarshalPhase(s.Phase)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotJSON{
		Phase:     phase,
		Completed: s.Completed,
		Settings:  s.Settings,
		CycleID:   s.CycleID,
		SavedAt:   s.SavedAt,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	phase, err := UnmarshalPhase(raw.Phase)
	if err != nil {
		return err
	}
	*s = Snapshot{
		Phase:     phase,
		Completed: raw.Completed,
		Settings:  raw.Settings,
		CycleID:   raw.CycleID,
		SavedAt:   raw.SavedAt,
	}
	return nil
}
