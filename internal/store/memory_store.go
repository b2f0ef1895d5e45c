package store

import (
	"context"
	"sync"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// MemoryStore is an in-memory implementation of AttendanceStore.
// Suitable for tests and single-instance deployments. A single mutex
// guards all state, so every operation is one atomic unit.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]map[string]*domain.ParticipantSession // room -> identity -> record
	members    map[string][]string                              // room -> identities in join order
	finishedAt map[string]int64                                 // room -> finish timestamp
	eventLog   []EventLogEntry
}

// NewMemoryStore creates a new in-memory attendance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]map[string]*domain.ParticipantSession),
		members:    make(map[string][]string),
		finishedAt: make(map[string]int64),
	}
}

func (s *MemoryStore) OpenInterval(ctx context.Context, room, identity string, profile domain.Profile, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.record(room, identity)
	if profile.Name != "" {
		record.Name = profile.Name
	}
	if profile.Avatar != "" {
		record.Avatar = profile.Avatar
	}
	if profile.GroupID != "" {
		record.GroupID = profile.GroupID
	}
	if profile.GroupName != "" {
		record.GroupName = profile.GroupName
	}
	record.ActiveJoinMs = nowMs

	return nil
}

func (s *MemoryStore) CloseInterval(ctx context.Context, room, identity string, nowMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[room][identity]
	if !ok || record.ActiveJoinMs == 0 {
		return 0, nil
	}

	delta := nowMs - record.ActiveJoinMs
	if delta < 0 {
		delta = 0
	}
	record.TotalMs += delta
	record.ActiveJoinMs = 0

	return delta, nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, room string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]string, len(s.members[room]))
	copy(members, s.members[room])
	return members, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, room, identity string) (*domain.ParticipantSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[room][identity]
	if !ok {
		return nil, nil
	}

	// Return a copy to prevent external modifications
	recordCopy := *record
	return &recordCopy, nil
}

func (s *MemoryStore) MarkRoomFinished(ctx context.Context, room string, nowMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishedAt[room] = nowMs
	return nil
}

func (s *MemoryStore) RoomFinishedAt(ctx context.Context, room string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finishedAt[room], nil
}

func (s *MemoryStore) AppendEventLog(ctx context.Context, entry EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventLog = append([]EventLogEntry{entry}, s.eventLog...)
	if len(s.eventLog) > eventLogCap {
		s.eventLog = s.eventLog[:eventLogCap]
	}
	return nil
}

// EventLog returns a copy of the rolling audit log, newest first.
func (s *MemoryStore) EventLog() []EventLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]EventLogEntry, len(s.eventLog))
	copy(entries, s.eventLog)
	return entries
}

func (s *MemoryStore) Close() error {
	return nil
}

// record returns the existing attendance record or creates a fresh one,
// registering the identity as a room member. Caller holds the lock.
func (s *MemoryStore) record(room, identity string) *domain.ParticipantSession {
	if s.sessions[room] == nil {
		s.sessions[room] = make(map[string]*domain.ParticipantSession)
	}
	record, ok := s.sessions[room][identity]
	if !ok {
		record = &domain.ParticipantSession{Room: room, Identity: identity}
		s.sessions[room][identity] = record
		s.members[room] = append(s.members[room], identity)
	}
	return record
}
