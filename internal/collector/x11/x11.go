package x11

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/rs/zerolog/log"

	"focusloop/internal/event"
)

const (
	unknownApp   = "Unknown App"
	unknownTitle = "Unknown Title"
)

type X11Collector struct {
	X            *xgbutil.XUtil
	lastFocus    event.FocusInfo
	stopChan     chan struct{}
	stopOnce     sync.Once
	focusRequest chan chan event.FocusInfo
}

func NewX11Collector() (*X11Collector, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		log.Warn().Err(err).Msg("EWMH potentially not supported by window manager")
	}

	return &X11Collector{
		X:            X,
		stopChan:     make(chan struct{}),
		focusRequest: make(chan chan event.FocusInfo),
	}, nil
}

func (c *X11Collector) getActiveWindowInfo() (event.FocusInfo, error) {
	activeWinID, err := ewmh.ActiveWindowGet(c.X)
	if err != nil {
		return event.FocusInfo{}, fmt.Errorf("could not get active window ID: %w", err)
	}
	if activeWinID == 0 {
		return event.FocusInfo{AppName: "None", Title: "No Active Window"}, nil
	}

	// _NET_WM_NAME, then ICCCM WM_NAME.
	title, err := ewmh.WmNameGet(c.X, activeWinID)
	if err != nil || title == "" {
		title, err = icccm.WmNameGet(c.X, activeWinID)
		if err != nil || title == "" {
			title = unknownTitle
		}
	}

	info := event.FocusInfo{AppName: unknownApp, Title: title}
	if hints, err := icccm.WmClassGet(c.X, activeWinID); err == nil && hints != nil {
		info.AppName = hints.Class
		info.Class = hints.Instance
	}
	return info, nil
}

// Start polls the active window every interval until ctx ends or Stop is
// called, sending one event per change of application or title.
func (c *X11Collector) Start(ctx context.Context, interval time.Duration, output chan<- event.Event) error {
	log.Info().Dur("interval", interval).Msg("Starting X11 collector")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The window manager may not answer straight after login.
	var err error
	for i := 0; i < 3; i++ {
		var initial event.FocusInfo
		if initial, err = c.getActiveWindowInfo(); err == nil {
			c.lastFocus = initial
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get initial window focus")
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("X11 collector stopping on context cancellation")
			return ctx.Err()
		case <-c.stopChan:
			log.Debug().Msg("X11 collector stopped")
			return nil
		case respChan := <-c.focusRequest:
			current, err := c.getActiveWindowInfo()
			if err != nil {
				log.Warn().Err(err).Msg("Error getting current focus on request")
			}
			respChan <- current
		case <-ticker.C:
			current, err := c.getActiveWindowInfo()
			if err != nil {
				continue
			}
			if !Changed(c.lastFocus, current) {
				continue
			}
			log.Debug().Str("app", current.AppName).Str("title", current.Title).Msg("Focus changed")
			select {
			case output <- FocusEvent(c.lastFocus, current, time.Now()):
				c.lastFocus = current
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stopChan:
				return nil
			}
		}
	}
}

func (c *X11Collector) GetCurrentFocus() (event.FocusInfo, error) {
	respChan := make(chan event.FocusInfo, 1)
	select {
	case c.focusRequest <- respChan:
		select {
		case focus := <-respChan:
			return focus, nil
		case <-time.After(time.Second):
			return event.FocusInfo{}, fmt.Errorf("timeout waiting for current focus response")
		}
	case <-time.After(100 * time.Millisecond):
		return event.FocusInfo{}, fmt.Errorf("timeout sending focus request to collector")
	}
}

func (c *X11Collector) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.X.Conn().Close()
	})
	return nil
}

// Changed compares focus samples, treating empty fields as unknown.
func Changed(prev, cur event.FocusInfo) bool {
	return orDefault(prev.AppName, unknownApp) != orDefault(cur.AppName, unknownApp) ||
		orDefault(prev.Title, unknownTitle) != orDefault(cur.Title, unknownTitle)
}

// FocusEvent builds the focus_change row for a switch from prev to cur.
func FocusEvent(prev, cur event.FocusInfo, at time.Time) event.Event {
	return event.Event{
		Timestamp:   at,
		Type:        event.EventTypeFocusChange,
		AppName:     cur.AppName,
		WindowTitle: cur.Title,
		Tag:         cur.Class,
		Notes:       fmt.Sprintf("Previous: %s - %s", orDefault(prev.AppName, unknownApp), Truncate(prev.Title, 50)),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if idx := strings.LastIndex(s[:maxLen-3], " "); idx > maxLen/2 {
		return s[:idx] + "..."
	}
	return s[:maxLen-3] + "..."
}
