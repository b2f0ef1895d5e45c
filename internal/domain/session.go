package domain

// ParticipantSession is the persisted attendance record for one
// room+identity pair.
//
// TotalMs accumulates finalized (closed-interval) connected time and
// only ever grows. ActiveJoinMs is the start of the currently open
// interval, or 0 when the participant has no open interval.
type ParticipantSession struct {
	Room         string `json:"room"`
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	GroupID      string `json:"group_id"`
	GroupName    string `json:"group_name"`
	TotalMs      int64  `json:"total_ms"`
	ActiveJoinMs int64  `json:"active_join_ms"`
}

// LiveTotalMs returns accumulated time plus the elapsed portion of an
// open interval evaluated at nowMs. Clock skew never subtracts time.
func (s *ParticipantSession) LiveTotalMs(nowMs int64) int64 {
	total := s.TotalMs
	if s.ActiveJoinMs != 0 && nowMs > s.ActiveJoinMs {
		total += nowMs - s.ActiveJoinMs
	}
	return total
}

// ParticipantStat is one leaderboard row in a room stats response.
type ParticipantStat struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	GroupID      string `json:"group_id"`
	GroupName    string `json:"group_name"`
	TotalSeconds int64  `json:"total_seconds"`
}

// RoomStatsResponse is the ranked attendance view for a room, ordered
// by total seconds descending, ties broken by identity ascending.
type RoomStatsResponse struct {
	Room         string            `json:"room"`
	Count        int               `json:"count"`
	FinishedAtMs int64             `json:"finished_at_ms,omitempty"`
	Participants []ParticipantStat `json:"participants"`
}
