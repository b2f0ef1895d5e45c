package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJoined(t *testing.T) {
	raw := &RawEvent{
		Event: EventParticipantJoined,
		Room:  &RawRoom{Name: "math-101", SID: "RM_abc"},
		Participant: &RawParticipant{
			Identity: "alice",
			Metadata: `{"name":"Alice","avatar":"https://cdn/a.png","groupId":"g1","groupName":"Blue Team"}`,
		},
	}

	ev := Normalize(raw)
	joined, ok := ev.(Joined)
	require.True(t, ok, "expected Joined, got %T", ev)
	assert.Equal(t, "math-101", joined.Room)
	assert.Equal(t, "alice", joined.Identity)
	assert.Equal(t, Profile{
		Name:      "Alice",
		Avatar:    "https://cdn/a.png",
		GroupID:   "g1",
		GroupName: "Blue Team",
	}, joined.Profile)
}

func TestNormalizeRoomFallsBackToSID(t *testing.T) {
	raw := &RawEvent{
		Event:       EventParticipantLeft,
		Room:        &RawRoom{SID: "RM_abc"},
		Participant: &RawParticipant{Identity: "bob"},
	}

	left, ok := Normalize(raw).(Left)
	require.True(t, ok)
	assert.Equal(t, "RM_abc", left.Room)
	assert.Equal(t, "bob", left.Identity)
}

func TestNormalizeParticipantNameWinsOverMetadata(t *testing.T) {
	raw := &RawEvent{
		Event: EventParticipantJoined,
		Room:  &RawRoom{Name: "r1"},
		Participant: &RawParticipant{
			Identity: "alice",
			Name:     "Alice Cooper",
			Metadata: `{"name":"alice-from-metadata"}`,
		},
	}

	joined := Normalize(raw).(Joined)
	assert.Equal(t, "Alice Cooper", joined.Profile.Name)
}

func TestNormalizeMalformedMetadataYieldsEmptyProfile(t *testing.T) {
	raw := &RawEvent{
		Event: EventParticipantJoined,
		Room:  &RawRoom{Name: "r1"},
		Participant: &RawParticipant{
			Identity: "alice",
			Metadata: `{not json at all`,
		},
	}

	joined, ok := Normalize(raw).(Joined)
	require.True(t, ok, "malformed metadata must not prevent normalization")
	assert.True(t, joined.Profile.IsZero())
}

func TestNormalizeIgnoredVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawEvent
	}{
		{"nil payload", nil},
		{"no room", &RawEvent{Event: EventParticipantJoined, Participant: &RawParticipant{Identity: "a"}}},
		{"joined without identity", &RawEvent{Event: EventParticipantJoined, Room: &RawRoom{Name: "r1"}}},
		{"left without identity", &RawEvent{Event: EventParticipantLeft, Room: &RawRoom{Name: "r1"}, Participant: &RawParticipant{}}},
		{"unknown type", &RawEvent{Event: "track_published", Room: &RawRoom{Name: "r1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Normalize(tt.raw).(Ignored)
			assert.True(t, ok, "expected Ignored")
		})
	}
}

func TestNormalizeRoomFinished(t *testing.T) {
	raw := &RawEvent{Event: EventRoomFinished, Room: &RawRoom{Name: "r1"}}

	finished, ok := Normalize(raw).(RoomFinished)
	require.True(t, ok)
	assert.Equal(t, "r1", finished.Room)
}

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "", (&RawEvent{}).RoomKey())
	assert.Equal(t, "named", (&RawEvent{Room: &RawRoom{Name: "named", SID: "sid"}}).RoomKey())
	assert.Equal(t, "sid", (&RawEvent{Room: &RawRoom{SID: "sid"}}).RoomKey())
}

func TestLiveTotalMs(t *testing.T) {
	idle := &ParticipantSession{TotalMs: 5000}
	assert.Equal(t, int64(5000), idle.LiveTotalMs(99999))

	active := &ParticipantSession{TotalMs: 5000, ActiveJoinMs: 10000}
	assert.Equal(t, int64(7000), active.LiveTotalMs(12000))

	// Clock skew: query time before the open interval start adds nothing.
	assert.Equal(t, int64(5000), active.LiveTotalMs(9000))
}
