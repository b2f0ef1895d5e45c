package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/shahzaib974/attendance-service/internal/archive"
	"github.com/shahzaib974/attendance-service/internal/client"
	"github.com/shahzaib974/attendance-service/internal/domain"
	"github.com/shahzaib974/attendance-service/internal/service"
	"github.com/shahzaib974/attendance-service/pkg/log"
	"github.com/shahzaib974/attendance-service/pkg/response"
)

// Handler handles HTTP requests for the attendance service.
type Handler struct {
	attendance service.AttendanceService
	roomClient *client.RoomClient
	archiver   archive.SummaryArchiver // nil when archiving is disabled
}

// NewHandler creates a new HTTP handler. roomClient and archiver may be
// nil; their routes then report the feature as unavailable.
func NewHandler(attendance service.AttendanceService, roomClient *client.RoomClient, archiver archive.SummaryArchiver) *Handler {
	return &Handler{
		attendance: attendance,
		roomClient: roomClient,
		archiver:   archiver,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/room-events", h.ReceiveRoomEvent)

		rooms := api.Group("/rooms")
		{
			rooms.GET("/:room/attendance", h.GetRoomAttendance)
			rooms.GET("/:room/summary", h.GetRoomSummary)
			rooms.GET("/:room/participants", h.ListParticipants)
			rooms.DELETE("/:room/participants/:identity", h.RemoveParticipant)
			rooms.DELETE("/:room", h.EndRoom)
		}
	}
}

// ReceiveRoomEvent ingests one room lifecycle event. The event is
// assumed to be verified upstream; signature checking is not this
// service's concern.
func (h *Handler) ReceiveRoomEvent(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var raw domain.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		l.Warn().Err(err).Msg("failed to bind room event")
		response.BadRequest(c, err.Error())
		return
	}

	c.Set(log.FieldRoom, raw.RoomKey())

	if err := h.attendance.ProcessEvent(ctx, &raw); err != nil {
		if errors.Is(err, service.ErrRoomRequired) {
			response.BadRequest(c, "no room.name or room.sid in payload")
			return
		}
		l.Error().Err(err).Str(log.FieldEvent, raw.Event).Msg("failed to process room event")
		response.ServiceUnavailable(c, "failed to process room event")
		return
	}

	response.Success(c, gin.H{"ok": true})
}

// GetRoomAttendance returns the ranked attendance leaderboard for a
// room, including extrapolated time for still-open intervals.
func (h *Handler) GetRoomAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")

	stats, err := h.attendance.RoomStats(ctx, room)
	if err != nil {
		if errors.Is(err, service.ErrRoomRequired) {
			response.BadRequest(c, "missing room")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to get room stats")
		response.ServiceUnavailable(c, "failed to get room stats")
		return
	}

	response.Success(c, stats)
}

// GetRoomSummary returns the archived final leaderboard of a finished room.
func (h *Handler) GetRoomSummary(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.archiver == nil {
		response.NotFound(c, "summary archive is disabled")
		return
	}

	room := c.Param("room")

	rows, finishedAtMs, err := h.archiver.RoomSummary(ctx, room)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to read room summary")
		response.InternalError(c, "failed to read room summary")
		return
	}
	if len(rows) == 0 {
		response.NotFound(c, "no summary archived for this room")
		return
	}

	response.Success(c, domain.RoomStatsResponse{
		Room:         room,
		Count:        len(rows),
		FinishedAtMs: finishedAtMs,
		Participants: rows,
	})
}

// ListParticipants proxies the room server's live participant list.
func (h *Handler) ListParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.roomClient == nil {
		response.NotFound(c, "room server proxy is not configured")
		return
	}

	room := c.Param("room")

	participants, err := h.roomClient.ListParticipants(ctx, room)
	if err != nil {
		if errors.Is(err, client.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to list participants")
		response.BadGateway(c, "room server request failed")
		return
	}

	response.Success(c, gin.H{
		"room":         room,
		"count":        len(participants),
		"participants": participants,
	})
}

// RemoveParticipant kicks a participant from a live room.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.roomClient == nil {
		response.NotFound(c, "room server proxy is not configured")
		return
	}

	room := c.Param("room")
	identity := c.Param("identity")

	if err := h.roomClient.RemoveParticipant(ctx, room, identity); err != nil {
		if errors.Is(err, client.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Str(log.FieldIdentity, identity).Msg("failed to remove participant")
		response.BadGateway(c, "room server request failed")
		return
	}

	response.Success(c, gin.H{"ok": true})
}

// EndRoom asks the room server to terminate a room. Finalization runs
// when the resulting room_finished event arrives.
func (h *Handler) EndRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.roomClient == nil {
		response.NotFound(c, "room server proxy is not configured")
		return
	}

	room := c.Param("room")

	if err := h.roomClient.EndRoom(ctx, room); err != nil {
		if errors.Is(err, client.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to end room")
		response.BadGateway(c, "room server request failed")
		return
	}

	response.Success(c, gin.H{"ok": true})
}
