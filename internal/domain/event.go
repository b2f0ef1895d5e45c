package domain

import "encoding/json"

// Event type tags sent by the room server.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventRoomFinished      = "room_finished"
)

// RawRoom identifies the room an event belongs to.
type RawRoom struct {
	Name string `json:"name"`
	SID  string `json:"sid"`
}

// RawParticipant identifies the participant an event belongs to.
// Metadata carries an application-defined JSON profile blob.
type RawParticipant struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Metadata string `json:"metadata"`
}

// RawEvent is a lifecycle event as delivered by the room server.
// Signature verification happens upstream; events handed to this
// service are assumed authentic.
type RawEvent struct {
	Event       string          `json:"event"`
	ID          string          `json:"id,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
	Room        *RawRoom        `json:"room,omitempty"`
	Participant *RawParticipant `json:"participant,omitempty"`
}

// Profile holds the participant profile fields carried in event metadata.
type Profile struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
}

// IsZero reports whether no profile field is set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Event is a normalized room lifecycle event. The set of variants is
// closed: Joined, Left, RoomFinished, and Ignored.
type Event interface {
	isEvent()
}

// Joined means a participant connected to a room.
type Joined struct {
	Room     string
	Identity string
	Profile  Profile
}

// Left means a participant disconnected from a room.
type Left struct {
	Room     string
	Identity string
}

// RoomFinished means the room server terminated a room.
type RoomFinished struct {
	Room string
}

// Ignored is an event this service does not act on. Reason is for
// logging only.
type Ignored struct {
	Reason string
}

func (Joined) isEvent()       {}
func (Left) isEvent()         {}
func (RoomFinished) isEvent() {}
func (Ignored) isEvent()      {}

// RoomKey resolves the room identifier for the event: room.name,
// falling back to room.sid. Empty when neither is present.
func (e *RawEvent) RoomKey() string {
	if e == nil {
		return ""
	}
	return resolveRoom(e.Room)
}

// Normalize turns a raw webhook payload into exactly one Event variant.
// Events that cannot be resolved to a room, participant events without
// an identity, and unrecognized event types normalize to Ignored.
func Normalize(raw *RawEvent) Event {
	if raw == nil {
		return Ignored{Reason: "empty payload"}
	}

	room := resolveRoom(raw.Room)
	if room == "" {
		return Ignored{Reason: "no room.name or room.sid in payload"}
	}

	switch raw.Event {
	case EventParticipantJoined:
		if raw.Participant == nil || raw.Participant.Identity == "" {
			return Ignored{Reason: "participant_joined without identity"}
		}
		return Joined{
			Room:     room,
			Identity: raw.Participant.Identity,
			Profile:  parseProfile(raw.Participant),
		}

	case EventParticipantLeft:
		if raw.Participant == nil || raw.Participant.Identity == "" {
			return Ignored{Reason: "participant_left without identity"}
		}
		return Left{Room: room, Identity: raw.Participant.Identity}

	case EventRoomFinished:
		return RoomFinished{Room: room}

	default:
		return Ignored{Reason: "unhandled event type: " + raw.Event}
	}
}

func resolveRoom(r *RawRoom) string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return r.SID
}

// parseProfile extracts the profile from participant metadata. Malformed
// metadata degrades to an empty profile and never aborts processing.
// The participant name on the event itself takes precedence over the
// name inside the metadata blob.
func parseProfile(p *RawParticipant) Profile {
	var profile Profile
	if p.Metadata != "" {
		if err := json.Unmarshal([]byte(p.Metadata), &profile); err != nil {
			profile = Profile{}
		}
	}
	if p.Name != "" {
		profile.Name = p.Name
	}
	return profile
}
