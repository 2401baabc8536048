package cycle

// Result is the outcome of one transition. Completed is set when the
// transition finishes a work interval; the caller owns the counter.
type Result struct {
	Phase     Phase
	Completed bool
}

// Changed reports whether the transition replaced prev.
func (r Result) Changed(prev Phase) bool {
	return r.Completed || r.Phase != prev
}

// Transition computes the phase that follows p when e arrives. It never
// fails: combinations with no rule return p unchanged.
func Transition(p Phase, completed int, s Settings, e Event) Result {
	switch cur := p.(type) {
	case Focus:
		return fromFocus(cur, s, e)
	case Deferral:
		return fromDeferral(cur, s, e)
	case Rest:
		return fromRest(cur, e)
	case Idle:
		return fromIdle(cur, completed, s, e)
	}
	// A nil phase behaves as Idle.
	return fromIdle(Idle{}, completed, s, e)
}

func fromIdle(cur Idle, completed int, s Settings, e Event) Result {
	if e.Kind != EventStart {
		return Result{Phase: cur}
	}
	return Result{Phase: Focus{
		Remaining: s.FocusSeconds,
		Total:     s.FocusSeconds,
		Completed: completed,
	}}
}

func fromFocus(cur Focus, s Settings, e Event) Result {
	switch e.Kind {
	case EventElapsed:
		if cur.Paused {
			return Result{Phase: cur}
		}
		return Result{Phase: Deferral{
			Max:        s.MaxDeferrals,
			Completed:  cur.Completed,
			FocusTotal: cur.Total,
		}}
	case EventStop, EventInterrupt:
		return Result{Phase: Idle{}}
	case EventPause:
		cur.Paused = true
	case EventResume:
		cur.Paused = false
	}
	return Result{Phase: cur}
}

func fromDeferral(cur Deferral, s Settings, e Event) Result {
	switch e.Kind {
	case EventDefer:
		if e.Seconds < 0 || cur.AtCeiling() {
			return Result{Phase: cur}
		}
		cur.Count++
		cur.Accumulated += e.Seconds
		return Result{Phase: cur}
	case EventElapsed:
		if !cur.AtCeiling() {
			return Result{Phase: cur}
		}
		return Result{Phase: restAfter(cur, s)}
	case EventBeginRest:
		return Result{Phase: restAfter(cur, s)}
	case EventStop:
		return Result{Phase: Idle{}}
	}
	return Result{Phase: cur}
}

func fromRest(cur Rest, e Event) Result {
	switch e.Kind {
	case EventElapsed:
		if cur.Paused {
			return Result{Phase: cur}
		}
		return Result{Phase: Idle{}, Completed: true}
	case EventStop:
		return Result{Phase: Idle{}, Completed: true}
	case EventPause:
		cur.Paused = true
	case EventResume:
		cur.Paused = false
	}
	return Result{Phase: cur}
}

func restAfter(d Deferral, s Settings) Rest {
	extended := s.IsExtended(d.Completed)
	total := s.RestSeconds(d.Accumulated, extended)
	return Rest{
		Remaining: total,
		Total:     total,
		Completed: d.Completed,
		Extended:  extended,
	}
}
