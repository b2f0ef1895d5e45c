package service

import (
	"context"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// AttendanceService defines the business logic for attendance tracking.
type AttendanceService interface {
	// ProcessEvent normalizes and applies one room lifecycle event.
	// Ignorable events are dropped without error; store failures are
	// reported wrapped in ErrStoreUnavailable and leave no partial
	// state behind, so the upstream sender can safely retry.
	ProcessEvent(ctx context.Context, raw *domain.RawEvent) error

	// RoomStats returns the ranked attendance leaderboard for a room,
	// extrapolating still-open intervals to the query time. Read-only.
	RoomStats(ctx context.Context, room string) (*domain.RoomStatsResponse, error)
}
