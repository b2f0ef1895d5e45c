package store

import (
	"context"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// EventLogEntry is one row of the rolling raw-event audit log.
type EventLogEntry struct {
	AtMs     int64  `json:"t"`
	Event    string `json:"event"`
	Room     string `json:"room"`
	Identity string `json:"identity,omitempty"`
}

// AttendanceStore persists per-participant attendance records and
// per-room membership sets.
//
// Every mutating operation is atomic with respect to concurrent calls
// on the same (room, identity) key. Webhook deliveries for the same
// participant can arrive concurrently (retries, near-simultaneous
// join/leave), so implementations must serialize conflicting updates
// rather than splitting them into separate read-then-write round trips.
type AttendanceStore interface {
	// OpenInterval upserts the participant profile (absent fields keep
	// their prior values), marks the open interval as starting at nowMs
	// regardless of prior interval state, and adds the identity to the
	// room membership set. One atomic unit.
	OpenInterval(ctx context.Context, room, identity string, profile domain.Profile, nowMs int64) error

	// CloseInterval closes the open interval at nowMs and returns the
	// credited delta in milliseconds. When no interval is open it
	// returns 0 and leaves the record unchanged. The delta is clamped
	// to zero so clock skew never subtracts time. One atomic unit.
	CloseInterval(ctx context.Context, room, identity string, nowMs int64) (int64, error)

	// ListMembers returns every identity ever observed joining the room.
	ListMembers(ctx context.Context, room string) ([]string, error)

	// GetSession reads one attendance record. Returns nil when the
	// participant has never been seen in the room.
	GetSession(ctx context.Context, room, identity string) (*domain.ParticipantSession, error)

	// MarkRoomFinished records the room finish timestamp. Idempotent:
	// re-processing a duplicate finish simply re-marks the timestamp.
	MarkRoomFinished(ctx context.Context, room string, nowMs int64) error

	// RoomFinishedAt returns the recorded finish timestamp, or 0 when
	// the room has not finished.
	RoomFinishedAt(ctx context.Context, room string) (int64, error)

	// AppendEventLog pushes an entry onto the rolling capped audit log.
	// Callers treat failures as best-effort.
	AppendEventLog(ctx context.Context, entry EventLogEntry) error

	// Close releases the store connection.
	Close() error
}
