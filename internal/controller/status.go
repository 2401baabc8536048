package controller

import "focusloop/internal/cycle"

// Status is a flat view of the controller for the socket API.
type Status struct {
	Phase           cycle.Kind     `json:"phase" yaml:"phase"`
	Remaining       int            `json:"remaining" yaml:"remaining"`
	Total           int            `json:"total,omitempty" yaml:"total,omitempty"`
	Paused          bool           `json:"paused,omitempty" yaml:"paused,omitempty"`
	Extended        bool           `json:"extended,omitempty" yaml:"extended,omitempty"`
	Completed       int            `json:"completed" yaml:"completed"`
	DeferralCount   int            `json:"deferral_count,omitempty" yaml:"deferral_count,omitempty"`
	MaxDeferrals    int            `json:"max_deferrals,omitempty" yaml:"max_deferrals,omitempty"`
	Accumulated     int            `json:"accumulated,omitempty" yaml:"accumulated,omitempty"`
	AwaitingChoice  bool           `json:"awaiting_choice,omitempty" yaml:"awaiting_choice,omitempty"`
	CycleID         string         `json:"cycle_id,omitempty" yaml:"cycle_id,omitempty"`
	PendingSettings bool           `json:"pending_settings,omitempty" yaml:"pending_settings,omitempty"`
	Settings        cycle.Settings `json:"settings" yaml:"settings"`
}

func (c *Controller) status() Status {
	st := Status{
		Phase:           c.machine.Phase().Kind(),
		Completed:       c.machine.Completed(),
		AwaitingChoice:  c.awaiting,
		CycleID:         c.cycleID,
		PendingSettings: c.pending != nil,
		Settings:        c.machine.Settings(),
	}
	switch cur := c.machine.Phase().(type) {
	case cycle.Focus:
		st.Remaining, st.Total, st.Paused = cur.Remaining, cur.Total, cur.Paused
	case cycle.Rest:
		st.Remaining, st.Total, st.Paused = cur.Remaining, cur.Total, cur.Paused
		st.Extended = cur.Extended
	case cycle.Deferral:
		st.DeferralCount, st.MaxDeferrals, st.Accumulated = cur.Count, cur.Max, cur.Accumulated
		st.Remaining = c.remaining()
	}
	return st
}
