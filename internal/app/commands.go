package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"focusloop/internal/controller"
	"focusloop/internal/cycle"
	"focusloop/internal/event"
	"focusloop/internal/ipc"
	"focusloop/internal/prompt"
	"focusloop/internal/report"
)

const answerPoll = 10 * time.Millisecond

var cycleCommands = map[string]cycle.EventKind{
	ipc.CmdStart:     cycle.EventStart,
	ipc.CmdStop:      cycle.EventStop,
	ipc.CmdPause:     cycle.EventPause,
	ipc.CmdResume:    cycle.EventResume,
	ipc.CmdInterrupt: cycle.EventInterrupt,
	ipc.CmdRest:      cycle.EventBeginRest,
}

// processCommand routes the command to the correct handler
func (a *App) processCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	if kind, ok := cycleCommands[cmd.Name]; ok {
		return a.dispatch(ctx, cycle.On(kind))
	}

	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.OK("pong", nil)

	case ipc.CmdStatus:
		st, err := a.status(ctx)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(describe(st.Status), st)

	case ipc.CmdDefer:
		var args ipc.DeferArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd, err)
		}
		seconds := args.Seconds
		if seconds == 0 {
			s, err := a.ctrl.Settings(ctx)
			if err != nil {
				return ipc.Fail(err)
			}
			seconds = s.DefaultDeferral()
		}
		return a.dispatch(ctx, cycle.Defer(seconds))

	case ipc.CmdSettingsGet:
		s, err := a.ctrl.Settings(ctx)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK("current settings", ipc.SettingsData{Settings: s, Applied: true})

	case ipc.CmdSettingsSet:
		var args ipc.SettingsArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd, err)
		}
		applied, err := a.ctrl.UpdateSettings(ctx, args.Settings)
		if err != nil {
			return ipc.Fail(err)
		}
		msg := "Settings applied"
		if !applied {
			msg = "Settings saved, applied when the cycle returns to idle"
		}
		return ipc.OK(msg, ipc.SettingsData{Settings: args.Settings, Applied: applied})

	case ipc.CmdAddEvent:
		var args ipc.AddEventArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd, err)
		}
		if args.Tag == "" {
			return ipc.Fail(errors.New("event tag cannot be empty"))
		}
		newEvent := event.Event{
			Timestamp: time.Now(),
			Type:      event.EventTypeCustom,
			Tag:       args.Tag,
			Notes:     args.Notes,
			Value:     args.Value,
		}
		select {
		case a.eventChan <- newEvent:
			return ipc.OK(fmt.Sprintf("Custom event '%s' added", args.Tag), nil)
		case <-ctx.Done():
			return ipc.Fail(fmt.Errorf("adding event: %w", ctx.Err()))
		}

	case ipc.CmdReport:
		var args ipc.ReportArgs
		if err := ipc.DecodeArgs(cmd.Args, &args); err != nil {
			return invalidArgs(cmd, err)
		}
		if args.Days < 1 {
			args.Days = 1
		}
		now := time.Now()
		from := report.StartOfDay(now).AddDate(0, 0, -(args.Days - 1))
		events, err := a.storage.GetEvents(ctx, from, now)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(fmt.Sprintf("%d events", len(events)), report.Summarize(events, from, now))

	default:
		return ipc.Fail(fmt.Errorf("unknown command: %s", cmd.Name))
	}
}

func invalidArgs(cmd ipc.Command, err error) ipc.Response {
	return ipc.Fail(fmt.Errorf("invalid args for %s: %w", cmd.Name, err))
}

// dispatch hands e to the controller. Events that do not apply to the
// current phase still succeed, with a message saying nothing changed. A rest
// or defer answers the open prompt when there is one.
func (a *App) dispatch(ctx context.Context, e cycle.Event) ipc.Response {
	if e.Kind == cycle.EventBeginRest || e.Kind == cycle.EventDefer {
		if err := prompt.ValidChoice(e); err != nil {
			return ipc.Fail(err)
		}
		if req, ok := a.mailbox.Pending(); ok {
			st, err := a.answer(ctx, req, e)
			switch {
			case err == nil:
				return ipc.OK(describe(st), ipc.StatusData{Status: st})
			case !errors.Is(err, prompt.ErrNoPrompt):
				return ipc.Fail(err)
			}
			// Closed before we got to it.
		}
	}
	after, changed, err := a.ctrl.Apply(ctx, e)
	if err != nil {
		return ipc.Fail(err)
	}
	data := ipc.StatusData{Status: after}
	if !changed {
		return ipc.OK(fmt.Sprintf("%s ignored in phase %s", e, after.Phase), data)
	}
	return ipc.OK(describe(after), data)
}

// answer resolves req with e and waits for the controller to act on it.
func (a *App) answer(ctx context.Context, req prompt.Request, e cycle.Event) (controller.Status, error) {
	if err := a.mailbox.Answer(e); err != nil {
		return controller.Status{}, err
	}
	ticker := time.NewTicker(answerPoll)
	defer ticker.Stop()
	for {
		st, err := a.ctrl.Status(ctx)
		if err != nil {
			return controller.Status{}, err
		}
		if !st.AwaitingChoice || st.Phase != cycle.KindDeferral ||
			st.DeferralCount != req.DeferralCount || st.CycleID != req.CycleID {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return controller.Status{}, fmt.Errorf("waiting for answer to prompt %d: %w", req.Seq, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *App) status(ctx context.Context) (ipc.StatusData, error) {
	st, err := a.ctrl.Status(ctx)
	if err != nil {
		return ipc.StatusData{}, err
	}
	data := ipc.StatusData{Status: st}
	if req, ok := a.mailbox.Pending(); ok {
		data.Prompt = &req
	}
	now := time.Now()
	events, err := a.storage.GetEvents(ctx, report.StartOfDay(now), now, event.EventTypePhase)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to count today's cycles")
	} else {
		data.CompletedToday = report.CompletedCycles(events)
	}
	return data, nil
}

func describe(st controller.Status) string {
	switch st.Phase {
	case cycle.KindFocus, cycle.KindRest:
		msg := fmt.Sprintf("%s: %s left", st.Phase, formatDuration(time.Duration(st.Remaining)*time.Second))
		if st.Paused {
			msg += " (paused)"
		}
		return msg
	case cycle.KindDeferral:
		if st.AwaitingChoice {
			return fmt.Sprintf("deferral %d/%d: rest now or defer", st.DeferralCount, st.MaxDeferrals)
		}
		return fmt.Sprintf("deferral %d/%d: %s left", st.DeferralCount, st.MaxDeferrals, formatDuration(time.Duration(st.Remaining)*time.Second))
	}
	return fmt.Sprintf("idle, %d cycles completed", st.Completed)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
