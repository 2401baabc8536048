package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"focusloop/internal/collector"
	"focusloop/internal/collector/x11"
	"focusloop/internal/config"
	"focusloop/internal/controller"
	"focusloop/internal/cycle"
	"focusloop/internal/event"
	"focusloop/internal/ipc"
	"focusloop/internal/notify"
	"focusloop/internal/prompt"
	"focusloop/internal/storage"

	sqlitestore "focusloop/internal/storage/sqlite"
)

const (
	connTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

var focusStarted = event.PhaseTag(string(cycle.KindIdle), string(cycle.KindFocus))

type App struct {
	cfg       *config.Config
	loader    *config.Loader
	storage   storage.Storage
	ctrl      *controller.Controller
	mailbox   *prompt.Mailbox
	hub       *notify.Hub
	collector collector.Collector
	updates   <-chan controller.Update
	log       zerolog.Logger

	socketPath string
	listener   *net.UnixListener

	eventChan chan event.Event

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	fatalMu sync.Mutex
	fatal   error

	// Latest controller update and the distraction list, for the event
	// processor and the status command.
	statusMutex sync.RWMutex
	current     controller.Update
	distract    map[string]struct{}
}

// NewApp wires storage, notifiers, the window collector and the cycle
// controller from cfg. loader may be nil; when set, edits to the config file
// are applied while running.
func NewApp(cfg *config.Config, loader *config.Loader) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		loader:     loader,
		mailbox:    prompt.NewMailbox(),
		eventChan:  make(chan event.Event, 100),
		socketPath: cfg.SocketPath,
		log:        log.With().Str("component", "app").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		current:    controller.Update{Phase: cycle.Idle{}},
		distract:   distractionSet(cfg.Distraction),
	}

	a.storage = sqlitestore.NewSQLiteStore(cfg.DatabasePath)
	if err := a.storage.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.hub = notify.NewHub(log.With().Str("component", "notify").Logger(), a.senders()...)

	ctrl, err := controller.New(cfg.Cycle.Settings(),
		controller.WithStore(a.storage),
		controller.WithHistory(a.storage),
		controller.WithPrompter(a.mailbox),
		controller.WithNotifier(a.hub),
		controller.WithPollInterval(cfg.PollInterval()),
		controller.WithLogger(log.With().Str("component", "controller").Logger()),
	)
	if err != nil {
		cancel()
		return nil, multierr.Combine(err, a.hub.Close(), a.storage.Close())
	}
	a.ctrl = ctrl
	a.updates = ctrl.Subscribe(32)

	if cfg.CollectMode != "off" {
		col, err := x11.NewX11Collector()
		if err != nil {
			a.log.Warn().Err(err).Msg("Failed to initialize X11 collector, focus tracking disabled")
		} else {
			a.collector = col
		}
	}
	return a, nil
}

func (a *App) senders() []notify.Sender {
	var senders []notify.Sender
	n := a.cfg.Notify
	if n.Log {
		senders = append(senders, notify.NewLog(log.Logger))
	}
	if n.Desktop {
		d, err := notify.NewDesktop("focusloop")
		if err != nil {
			a.log.Warn().Err(err).Msg("Desktop notifications disabled")
		} else {
			senders = append(senders, d)
		}
	}
	if n.Bark.Key != "" {
		senders = append(senders, notify.NewBark(n.Bark.Server, n.Bark.Key, nil))
	}
	if n.Sound.Player != "" {
		files := make(map[notify.Kind]string, len(n.Sound.Files))
		for kind, file := range n.Sound.Files {
			files[notify.Kind(kind)] = file
		}
		senders = append(senders, notify.NewSound(n.Sound.Player, files))
	}
	return senders
}

func distractionSet(d config.DistractionConfig) map[string]struct{} {
	if !d.Enabled {
		return nil
	}
	set := make(map[string]struct{}, len(d.Apps))
	for _, app := range d.Apps {
		set[strings.ToLower(app)] = struct{}{}
	}
	return set
}

// setupSocket checks for existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		a.log.Info().Str("socket", a.socketPath).Msg("Removing stale socket file")
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}
	if err := os.Chmod(a.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set permissions on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	a.log.Info().Str("socket", a.socketPath).Msg("Listening for commands")
	return nil
}

// listenForCommands accepts connections until the listener is closed.
func (a *App) listenForCommands() {
	defer a.log.Debug().Msg("Socket command listener stopped")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || a.ctx.Err() != nil {
				return
			}
			a.log.Warn().Err(err).Msg("Failed to accept connection")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		a.wg.Go(func() { a.handleConnection(conn) })
	}
}

// handleConnection reads one command, processes it and sends the response.
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(connTimeout))
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			a.log.Warn().Err(err).Msg("Failed to decode command")
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Now().Add(connTimeout))
	a.log.Debug().Str("command", cmd.Name).Msg("Received command")

	ctx, cancel := context.WithTimeout(a.ctx, connTimeout)
	defer cancel()
	if err := encoder.Encode(a.processCommand(ctx, cmd)); err != nil {
		a.log.Warn().Err(err).Msg("Failed to send response")
	}
}

// Run blocks until a signal arrives, Shutdown is called or the controller
// fails. The controller error, if any, is returned.
func (a *App) Run() error {
	defer a.cleanup()

	a.log.Info().
		Str("collect_mode", a.cfg.CollectMode).
		Bool("x11", a.collector != nil).
		Str("database", a.cfg.DatabasePath).
		Msg("Starting focusloop daemon")

	if err := a.setupSocket(); err != nil {
		a.cancel()
		return err
	}

	a.handleSignals()

	a.wg.Go(func() {
		if err := a.ctrl.Run(a.ctx); err != nil {
			a.setFatal(err)
			a.cancel()
		}
	})
	a.wg.Go(a.mainLoop)
	a.wg.Go(a.processEvents)

	if a.collector != nil {
		a.wg.Go(func() {
			err := a.collector.Start(a.ctx, a.cfg.CollectionInterval(), a.eventChan)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn().Err(err).Msg("X11 collector error")
			}
		})
	}

	a.wg.Go(a.listenForCommands)

	if a.loader != nil {
		a.loader.Watch(a.reload)
	}

	if _, err := a.storage.SaveEvent(a.ctx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStart}); err != nil {
		a.log.Warn().Err(err).Msg("Failed to save app_start event")
	}

	a.log.Info().Msg("focusloop daemon running, send commands with focusloop-cli")
	<-a.ctx.Done()
	a.log.Info().Msg("Shutting down, waiting for components")

	if err := a.listener.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Error closing socket listener")
	}
	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()
	select {
	case <-waitChan:
		a.log.Debug().Msg("All application goroutines finished")
	case <-time.After(shutdownTimeout):
		a.log.Warn().Msg("Timeout waiting for application goroutines to stop")
	}

	return a.fatalErr()
}

// Shutdown asks Run to return.
func (a *App) Shutdown() {
	a.cancel()
}

func (a *App) setFatal(err error) {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	if a.fatal == nil {
		a.fatal = err
	}
}

func (a *App) fatalErr() error {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	return a.fatal
}

// reload applies an edited config file. Cycle settings wait for idle.
func (a *App) reload(cfg *config.Config) {
	a.statusMutex.Lock()
	a.distract = distractionSet(cfg.Distraction)
	a.statusMutex.Unlock()

	ctx, cancel := context.WithTimeout(a.ctx, connTimeout)
	defer cancel()
	applied, err := a.ctrl.UpdateSettings(ctx, cfg.Cycle.Settings())
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to apply reloaded settings")
		return
	}
	a.log.Info().Bool("applied", applied).Msg("Reloaded cycle settings")
}

// mainLoop follows controller updates and open prompts.
func (a *App) mainLoop() {
	defer a.log.Debug().Msg("Main application loop stopped")

	asked := a.mailbox.Asked()
	for {
		select {
		case <-a.ctx.Done():
			return
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			a.statusMutex.Lock()
			a.current = u
			a.statusMutex.Unlock()
			if u.Transition != "" {
				a.log.Info().
					Str("transition", u.Transition).
					Str("cause", string(u.Cause)).
					Int("remaining", u.Remaining).
					Int("completed", u.Completed).
					Msg("Phase changed")
			}
			if u.Transition == focusStarted && a.collector != nil {
				cycleID := u.CycleID
				a.wg.Go(func() { a.checkFocused(cycleID) })
			}
		case req := <-asked:
			a.log.Info().
				Int("deferrals", req.DeferralCount).
				Int("max", req.MaxDeferrals).
				Ints("options", req.Options).
				Msg("Focus complete: rest now or defer")
		}
	}
}

// processEvents stores collector and custom events, and interrupts focus
// when a distracting application takes over.
func (a *App) processEvents() {
	defer a.log.Debug().Msg("Event processor stopped")

	var lastFocusEvent *event.Event

	for {
		select {
		case <-a.ctx.Done():
			return
		case e := <-a.eventChan:
			a.statusMutex.RLock()
			phase := a.current.Phase.Kind()
			cycleID := a.current.CycleID
			distract := a.distract
			a.statusMutex.RUnlock()
			if e.CycleID == "" {
				e.CycleID = cycleID
			}

			if e.Type == event.EventTypeFocusChange {
				if phase == cycle.KindFocus && isDistraction(distract, e) {
					a.interrupt(e)
				}
				if a.cfg.CollectMode == "focus" && phase != cycle.KindFocus {
					continue
				}
				if lastFocusEvent != nil {
					a.log.Debug().
						Str("app", lastFocusEvent.AppName).
						Dur("spent", e.Timestamp.Sub(lastFocusEvent.Timestamp)).
						Msg("Focus moved")
				}
				last := e
				lastFocusEvent = &last
			}

			if _, err := a.storage.SaveEvent(a.ctx, e); err != nil {
				a.log.Warn().Err(err).Str("type", string(e.Type)).Str("tag", e.Tag).Msg("Error saving event")
			} else if e.Type != event.EventTypeFocusChange {
				a.log.Info().Str("type", string(e.Type)).Str("tag", e.Tag).Msg("Event saved")
			}
		}
	}
}

func isDistraction(set map[string]struct{}, e event.Event) bool {
	if len(set) == 0 {
		return false
	}
	for _, name := range []string{e.AppName, e.Tag} {
		if name == "" {
			continue
		}
		if _, ok := set[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}

// checkFocused looks at the window that already has the focus when a
// focus interval starts. The collector only reports changes.
func (a *App) checkFocused(cycleID string) {
	info, err := a.collector.GetCurrentFocus()
	if err != nil {
		a.log.Debug().Err(err).Msg("Current focus unavailable")
		return
	}
	e := event.Event{
		Timestamp:   time.Now(),
		Type:        event.EventTypeFocusChange,
		AppName:     info.AppName,
		WindowTitle: info.Title,
		Tag:         info.Class,
		CycleID:     cycleID,
	}
	a.statusMutex.RLock()
	distract := a.distract
	a.statusMutex.RUnlock()
	if isDistraction(distract, e) {
		a.interrupt(e)
	}
}

func (a *App) interrupt(e event.Event) {
	ctx, cancel := context.WithTimeout(a.ctx, connTimeout)
	defer cancel()
	st, changed, err := a.ctrl.Apply(ctx, cycle.On(cycle.EventInterrupt))
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to interrupt focus")
		return
	}
	if !changed {
		a.log.Debug().Str("app", e.AppName).Str("phase", string(st.Phase)).Msg("Focus already over")
		return
	}
	a.log.Info().Str("app", e.AppName).Str("phase", string(st.Phase)).Msg("Distraction interrupted focus")

	row := event.Event{
		Timestamp:   e.Timestamp,
		Type:        event.EventTypeDistraction,
		AppName:     e.AppName,
		WindowTitle: e.WindowTitle,
		Tag:         e.Tag,
		CycleID:     e.CycleID,
	}
	if _, err := a.storage.SaveEvent(ctx, row); err != nil {
		a.log.Warn().Err(err).Msg("Error saving distraction event")
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("Received signal, initiating shutdown")
			a.cancel()
		case <-a.ctx.Done():
		}
	}()
}

// cleanup records the stop and releases every resource.
func (a *App) cleanup() {
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	var errs error
	if _, err := a.storage.SaveEvent(saveCtx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStop}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("save app_stop: %w", err))
	}
	if a.collector != nil {
		errs = multierr.Append(errs, a.collector.Stop())
	}
	errs = multierr.Append(errs, a.hub.Close())
	errs = multierr.Append(errs, a.storage.Close())

	if _, err := os.Stat(a.socketPath); err == nil && a.listener != nil {
		if err := os.Remove(a.socketPath); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, fmt.Errorf("remove socket: %w", err))
		}
	}

	for _, err := range multierr.Errors(errs) {
		a.log.Warn().Err(err).Msg("Cleanup")
	}
	a.log.Info().Msg("focusloop stopped")
}
