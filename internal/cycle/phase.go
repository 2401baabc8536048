// Package cycle holds the focus/rest phase machine. Transition is a pure
// function over (phase, completed count, settings, event); Machine wraps it
// with the state the controller carries between events.
package cycle

// Kind names a phase variant.
type Kind string

const (
	KindIdle     Kind = "idle"
	KindFocus    Kind = "focus"
	KindDeferral Kind = "deferral"
	KindRest     Kind = "rest"
)

// Phase is one of Idle, Focus, Deferral or Rest.
type Phase interface {
	Kind() Kind
	phase()
}

// Idle has no countdown.
type Idle struct{}

// Focus is a deep-work interval.
type Focus struct {
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
	Paused    bool `json:"paused"`
	Completed int  `json:"completed"`
}

// Deferral is the "time's up, choose now" interval entered when focus ends.
// It has no countdown of its own; each accepted deferral runs a
// sub-countdown owned by the controller.
type Deferral struct {
	Accumulated int `json:"accumulated"`
	Count       int `json:"count"`
	Max         int `json:"max"`
	Completed   int `json:"completed"`
	FocusTotal  int `json:"focus_total"`
}

// Rest is a recovery interval.
type Rest struct {
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
	Paused    bool `json:"paused"`
	Completed int  `json:"completed"`
	Extended  bool `json:"extended"`
}

func (Idle) Kind() Kind     { return KindIdle }
func (Focus) Kind() Kind    { return KindFocus }
func (Deferral) Kind() Kind { return KindDeferral }
func (Rest) Kind() Kind     { return KindRest }

func (Idle) phase()     {}
func (Focus) phase()    {}
func (Deferral) phase() {}
func (Rest) phase()     {}

// AtCeiling reports whether no further deferral is allowed.
func (d Deferral) AtCeiling() bool {
	return d.Count >= d.Max
}

// Countdown reports the remaining and total seconds of a timed phase and
// whether it is paused. ok is false for Idle and Deferral.
func Countdown(p Phase) (remaining, total int, paused, ok bool) {
	switch cur := p.(type) {
	case Focus:
		return cur.Remaining, cur.Total, cur.Paused, true
	case Rest:
		return cur.Remaining, cur.Total, cur.Paused, true
	}
	return 0, 0, false, false
}
