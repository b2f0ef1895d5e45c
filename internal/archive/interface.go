package archive

import (
	"context"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// SummaryArchiver persists the final leaderboard of a finished room so
// attendance survives store retention. Writing is best-effort from the
// caller's point of view: an archive failure must never fail the
// finalization that triggered it.
type SummaryArchiver interface {
	// ArchiveRoomSummary upserts one row per participant. Idempotent
	// per (room, identity), so re-finalizing a room re-writes the same
	// summary instead of duplicating it.
	ArchiveRoomSummary(ctx context.Context, room string, finishedAtMs int64, rows []domain.ParticipantStat) error

	// RoomSummary returns the archived leaderboard, ranked, plus the
	// recorded finish timestamp. Empty slice when nothing was archived.
	RoomSummary(ctx context.Context, room string) ([]domain.ParticipantStat, int64, error)
}
