package collector

import (
	"context"
	"time"

	"focusloop/internal/event"
)

// Collector samples the focused window and emits focus_change events.
type Collector interface {
	Start(ctx context.Context, interval time.Duration, output chan<- event.Event) error
	Stop() error
	GetCurrentFocus() (event.FocusInfo, error)
}
