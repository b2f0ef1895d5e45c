package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shahzaib974/attendance-service/internal/archive"
	"github.com/shahzaib974/attendance-service/internal/audit"
	"github.com/shahzaib974/attendance-service/internal/domain"
	"github.com/shahzaib974/attendance-service/internal/store"
	"github.com/shahzaib974/attendance-service/pkg/log"
)

var (
	ErrRoomRequired     = errors.New("event cannot be resolved to a room")
	ErrStoreUnavailable = errors.New("attendance store unavailable")
)

// Config holds attendance service configuration.
type Config struct {
	// FinalizeConcurrency bounds the parallel close-interval calls
	// during room finalization.
	FinalizeConcurrency int

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

type attendanceServiceImpl struct {
	store               store.AttendanceStore
	archiver            archive.SummaryArchiver // nil disables archiving
	now                 func() time.Time
	finalizeConcurrency int
	statsGroup          singleflight.Group
}

// NewAttendanceService creates a new attendance service. archiver may be
// nil when summary archiving is disabled.
func NewAttendanceService(s store.AttendanceStore, archiver archive.SummaryArchiver, cfg Config) AttendanceService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	concurrency := cfg.FinalizeConcurrency
	if concurrency < 1 {
		concurrency = 8
	}
	return &attendanceServiceImpl{
		store:               s,
		archiver:            archiver,
		now:                 now,
		finalizeConcurrency: concurrency,
	}
}

// ProcessEvent applies one lifecycle event. Per (room, identity) the
// record moves between two states: idle (active_join_ms == 0) and
// active. A join opens the interval, a leave closes it, and a room
// finish closes every interval still open in the room.
func (s *attendanceServiceImpl) ProcessEvent(ctx context.Context, raw *domain.RawEvent) error {
	nowMs := s.now().UnixMilli()
	l := log.Ctx(ctx)

	s.logRawEvent(ctx, raw, nowMs)

	if raw == nil || raw.RoomKey() == "" {
		return ErrRoomRequired
	}

	switch ev := domain.Normalize(raw).(type) {
	case domain.Joined:
		// A join while already active re-opens the interval at the new
		// timestamp. The pending open interval is discarded, matching
		// how the room server's retried joins have always been counted.
		if err := s.store.OpenInterval(ctx, ev.Room, ev.Identity, ev.Profile, nowMs); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		audit.Log(ctx, audit.ActionIntervalOpened, ev.Room, ev.Identity, "participant joined")
		return nil

	case domain.Left:
		// Closing an already-idle record is a no-op, so duplicate leave
		// deliveries credit the interval exactly once.
		delta, err := s.store.CloseInterval(ctx, ev.Room, ev.Identity, nowMs)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		audit.LogDelta(ctx, audit.ActionIntervalClosed, ev.Room, ev.Identity, delta, "participant left")
		return nil

	case domain.RoomFinished:
		return s.finalizeRoom(ctx, ev.Room, nowMs)

	case domain.Ignored:
		l.Debug().Str(log.FieldEvent, raw.Event).Str(audit.FieldDetail, ev.Reason).Msg("event ignored")
		return nil

	default:
		return nil
	}
}

// finalizeRoom closes every still-open interval so no session stays
// permanently open once the room has ended, then records the finish
// timestamp. Re-processing a duplicate finish closes zero additional
// intervals and re-marks the timestamp.
func (s *attendanceServiceImpl) finalizeRoom(ctx context.Context, room string, nowMs int64) error {
	members, err := s.store.ListMembers(ctx, room)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.finalizeConcurrency)
	for _, identity := range members {
		g.Go(func() error {
			_, err := s.store.CloseInterval(gctx, room, identity, nowMs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.store.MarkRoomFinished(ctx, room, nowMs); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	audit.Log(ctx, audit.ActionRoomFinalized, room, "", "room finished, open intervals closed")

	s.archiveSummary(ctx, room, nowMs)
	return nil
}

// archiveSummary persists the final leaderboard. Best-effort: archive
// failures are logged and never fail the finalization.
func (s *attendanceServiceImpl) archiveSummary(ctx context.Context, room string, finishedAtMs int64) {
	if s.archiver == nil {
		return
	}

	logger := log.Ctx(ctx)
	rows, err := s.buildStats(ctx, room, finishedAtMs)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("failed to build summary for archive")
		return
	}
	if err := s.archiver.ArchiveRoomSummary(ctx, room, finishedAtMs, rows); err != nil {
		logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("failed to archive room summary")
	}
}

func (s *attendanceServiceImpl) RoomStats(ctx context.Context, room string) (*domain.RoomStatsResponse, error) {
	if room == "" {
		return nil, ErrRoomRequired
	}

	// Concurrent identical queries collapse into one store scan.
	v, err, _ := s.statsGroup.Do(room, func() (interface{}, error) {
		nowMs := s.now().UnixMilli()

		rows, err := s.buildStats(ctx, room, nowMs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		finishedAt, err := s.store.RoomFinishedAt(ctx, room)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		return &domain.RoomStatsResponse{
			Room:         room,
			Count:        len(rows),
			FinishedAtMs: finishedAt,
			Participants: rows,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.RoomStatsResponse), nil
}

// buildStats reads every member's record and projects it to a ranked
// leaderboard evaluated at nowMs. Never mutates the store.
func (s *attendanceServiceImpl) buildStats(ctx context.Context, room string, nowMs int64) ([]domain.ParticipantStat, error) {
	members, err := s.store.ListMembers(ctx, room)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ParticipantStat, 0, len(members))
	for _, identity := range members {
		session, err := s.store.GetSession(ctx, room, identity)
		if err != nil {
			return nil, err
		}
		if session == nil {
			continue
		}

		rows = append(rows, domain.ParticipantStat{
			Identity:     identity,
			Name:         session.Name,
			Avatar:       session.Avatar,
			GroupID:      session.GroupID,
			GroupName:    session.GroupName,
			TotalSeconds: roundToSeconds(session.LiveTotalMs(nowMs)),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalSeconds != rows[j].TotalSeconds {
			return rows[i].TotalSeconds > rows[j].TotalSeconds
		}
		return rows[i].Identity < rows[j].Identity
	})

	return rows, nil
}

// logRawEvent records the raw delivery in the rolling audit log. Audit
// failures never block the state transition.
func (s *attendanceServiceImpl) logRawEvent(ctx context.Context, raw *domain.RawEvent, nowMs int64) {
	if raw == nil {
		return
	}

	entry := store.EventLogEntry{AtMs: nowMs, Event: raw.Event, Room: raw.RoomKey()}
	if raw.Participant != nil {
		entry.Identity = raw.Participant.Identity
	}
	if err := s.store.AppendEventLog(ctx, entry); err != nil {
		logger := log.Ctx(ctx)
		logger.Warn().Err(err).Msg("failed to append event log")
	}

	audit.Log(ctx, audit.ActionEventReceived, entry.Room, entry.Identity, "event received")
}

func roundToSeconds(ms int64) int64 {
	return (ms + 500) / 1000
}
