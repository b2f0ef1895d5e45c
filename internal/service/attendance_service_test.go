package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahzaib974/attendance-service/internal/domain"
	"github.com/shahzaib974/attendance-service/internal/store"
)

// fakeClock drives the service clock so event timing is deterministic.
type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}

func newTestService(t *testing.T) (AttendanceService, *store.MemoryStore, *fakeClock) {
	t.Helper()
	s := store.NewMemoryStore()
	clock := &fakeClock{}
	svc := NewAttendanceService(s, nil, Config{Now: clock.Now})
	return svc, s, clock
}

func joinEvent(room, identity string) *domain.RawEvent {
	return &domain.RawEvent{
		Event:       domain.EventParticipantJoined,
		Room:        &domain.RawRoom{Name: room},
		Participant: &domain.RawParticipant{Identity: identity},
	}
}

func joinEventWithMetadata(room, identity, metadata string) *domain.RawEvent {
	ev := joinEvent(room, identity)
	ev.Participant.Metadata = metadata
	return ev
}

func leaveEvent(room, identity string) *domain.RawEvent {
	return &domain.RawEvent{
		Event:       domain.EventParticipantLeft,
		Room:        &domain.RawRoom{Name: room},
		Participant: &domain.RawParticipant{Identity: identity},
	}
}

func finishEvent(room string) *domain.RawEvent {
	return &domain.RawEvent{
		Event: domain.EventRoomFinished,
		Room:  &domain.RawRoom{Name: room},
	}
}

func TestPairingLaw(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(120000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, int64(120000), session.TotalMs)
	assert.Equal(t, int64(0), session.ActiveJoinMs)

	stats, err := svc.RoomStats(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stats.Participants, 1)
	assert.Equal(t, int64(120), stats.Participants[0].TotalSeconds)
}

func TestIdempotentLeave(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(100)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), session.TotalMs, "duplicate leave must credit exactly one delta")
	assert.Equal(t, int64(0), session.ActiveJoinMs)
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(5000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "bob")))

	session, err := s.GetSession(ctx, "r1", "bob")
	require.NoError(t, err)
	assert.Nil(t, session, "a leave with no prior join must not create a record")
}

func TestNegativeDeltaClamped(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(10000)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	// Clock skew: the leave carries an earlier timestamp than the join.
	clock.Set(4000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), session.TotalMs)
	assert.Equal(t, int64(0), session.ActiveJoinMs)
}

func TestDuplicateJoinReopensInterval(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	// A second join while active re-opens at the new timestamp and the
	// first open interval earns no credit.
	clock.Set(60000)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(90000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), session.TotalMs)
}

func TestRoomFinishedClosesAllOpenIntervals(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "bob")))

	clock.Set(100000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "bob")))

	clock.Set(300000)
	require.NoError(t, svc.ProcessEvent(ctx, finishEvent("r1")))

	for _, identity := range []string{"alice", "bob"} {
		session, err := s.GetSession(ctx, "r1", identity)
		require.NoError(t, err)
		assert.Equal(t, int64(0), session.ActiveJoinMs, "%s must be idle after finish", identity)
	}

	alice, _ := s.GetSession(ctx, "r1", "alice")
	assert.Equal(t, int64(300000), alice.TotalMs, "alice's open interval is closed at finish time")
	bob, _ := s.GetSession(ctx, "r1", "bob")
	assert.Equal(t, int64(100000), bob.TotalMs, "bob's closed interval is untouched")

	finishedAt, err := s.RoomFinishedAt(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(300000), finishedAt)
}

func TestIdempotentFinish(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(300000)
	require.NoError(t, svc.ProcessEvent(ctx, finishEvent("r1")))

	clock.Set(400000)
	require.NoError(t, svc.ProcessEvent(ctx, finishEvent("r1")))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300000), session.TotalMs, "duplicate finish closes zero additional intervals")

	// The later finish re-marks the timestamp.
	finishedAt, err := s.RoomFinishedAt(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(400000), finishedAt)

	// Totals stay the same indefinitely once the interval is closed.
	clock.Set(1000000)
	stats, err := svc.RoomStats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), stats.Participants[0].TotalSeconds)
}

func TestLiveQueryMonotonicity(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(10000)
	first, err := svc.RoomStats(ctx, "r1")
	require.NoError(t, err)

	clock.Set(25000)
	second, err := svc.RoomStats(ctx, "r1")
	require.NoError(t, err)

	assert.LessOrEqual(t, first.Participants[0].TotalSeconds, second.Participants[0].TotalSeconds)
	assert.Equal(t, int64(10), first.Participants[0].TotalSeconds)
	assert.Equal(t, int64(25), second.Participants[0].TotalSeconds)
}

func TestMalformedMetadataFallsBackToStoredProfile(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx,
		joinEventWithMetadata("r1", "alice", `{"name":"Alice","avatar":"https://cdn/a.png"}`)))

	clock.Set(1000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	// Rejoin with garbage metadata: profile fields fall back to the
	// stored values and the state still transitions to active.
	clock.Set(2000)
	require.NoError(t, svc.ProcessEvent(ctx, joinEventWithMetadata("r1", "alice", `{{{`)))

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", session.Name)
	assert.Equal(t, "https://cdn/a.png", session.Avatar)
	assert.Equal(t, int64(2000), session.ActiveJoinMs)
}

func TestStatsRankingAndTieBreak(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	// carol: 50s, alice and bob tie at 20s.
	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "carol")))
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "bob")))
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(20000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "bob")))
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "alice")))

	clock.Set(50000)
	require.NoError(t, svc.ProcessEvent(ctx, leaveEvent("r1", "carol")))

	stats, err := svc.RoomStats(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 3, stats.Count)

	identities := []string{
		stats.Participants[0].Identity,
		stats.Participants[1].Identity,
		stats.Participants[2].Identity,
	}
	assert.Equal(t, []string{"carol", "alice", "bob"}, identities,
		"descending by seconds, ties broken by identity ascending")
}

func TestIgnoredEventsAreDropped(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	raw := &domain.RawEvent{Event: "track_published", Room: &domain.RawRoom{Name: "r1"}}
	require.NoError(t, svc.ProcessEvent(ctx, raw))

	members, err := s.ListMembers(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestEventWithoutRoomIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.ProcessEvent(ctx, &domain.RawEvent{Event: domain.EventParticipantJoined})
	assert.ErrorIs(t, err, ErrRoomRequired)

	_, err = svc.RoomStats(ctx, "")
	assert.ErrorIs(t, err, ErrRoomRequired)
}

func TestRawEventsAreAudited(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(42)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	entries := s.EventLog()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].AtMs)
	assert.Equal(t, domain.EventParticipantJoined, entries[0].Event)
	assert.Equal(t, "r1", entries[0].Room)
	assert.Equal(t, "alice", entries[0].Identity)
}

// recordingArchiver captures archive calls for assertions.
type recordingArchiver struct {
	mu           sync.Mutex
	room         string
	finishedAtMs int64
	rows         []domain.ParticipantStat
	calls        int
}

func (a *recordingArchiver) ArchiveRoomSummary(ctx context.Context, room string, finishedAtMs int64, rows []domain.ParticipantStat) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.room = room
	a.finishedAtMs = finishedAtMs
	a.rows = rows
	a.calls++
	return nil
}

func (a *recordingArchiver) RoomSummary(ctx context.Context, room string) ([]domain.ParticipantStat, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows, a.finishedAtMs, nil
}

func TestFinalizationArchivesSummary(t *testing.T) {
	s := store.NewMemoryStore()
	clock := &fakeClock{}
	archiver := &recordingArchiver{}
	svc := NewAttendanceService(s, archiver, Config{Now: clock.Now})
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(300000)
	require.NoError(t, svc.ProcessEvent(ctx, finishEvent("r1")))

	assert.Equal(t, 1, archiver.calls)
	assert.Equal(t, "r1", archiver.room)
	assert.Equal(t, int64(300000), archiver.finishedAtMs)
	require.Len(t, archiver.rows, 1)
	assert.Equal(t, "alice", archiver.rows[0].Identity)
	assert.Equal(t, int64(300), archiver.rows[0].TotalSeconds)
}

func TestConcurrentDuplicateLeaves(t *testing.T) {
	svc, s, clock := newTestService(t)
	ctx := context.Background()

	clock.Set(0)
	require.NoError(t, svc.ProcessEvent(ctx, joinEvent("r1", "alice")))

	clock.Set(100)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.ProcessEvent(ctx, leaveEvent("r1", "alice"))
		}()
	}
	wg.Wait()

	session, err := s.GetSession(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), session.TotalMs,
		"concurrent duplicate leaves must credit exactly one delta")
}
