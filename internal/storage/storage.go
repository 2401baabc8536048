package storage

import (
	"context"
	"time"

	"focusloop/internal/cycle"
	"focusloop/internal/event"
)

type Storage interface {
	Init(ctx context.Context) error
	SaveEvent(ctx context.Context, e event.Event) (int64, error)
	GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error)
	// SaveSnapshot overwrites the single stored snapshot.
	SaveSnapshot(ctx context.Context, snap cycle.Snapshot) error
	// LoadSnapshot reports ok=false when nothing was ever saved.
	LoadSnapshot(ctx context.Context) (snap cycle.Snapshot, ok bool, err error)
	Close() error
}
