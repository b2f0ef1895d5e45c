package ingest

import (
	"context"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// RoomEventHandler handles incoming room lifecycle events.
type RoomEventHandler interface {
	ProcessEvent(ctx context.Context, raw *domain.RawEvent) error
}

// RoomEventConsumer consumes room lifecycle events from a broker and
// feeds them to a handler. Delivery is at-least-once; the handler side
// is idempotent for leaves and finishes, so redelivery is safe.
type RoomEventConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
