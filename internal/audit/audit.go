package audit

import (
	"context"

	"github.com/shahzaib974/attendance-service/pkg/log"
)

// Audit actions for the attendance service.
const (
	ActionEventReceived  = "attendance.event_received"
	ActionEventIgnored   = "attendance.event_ignored"
	ActionIntervalOpened = "attendance.interval_opened"
	ActionIntervalClosed = "attendance.interval_closed"
	ActionRoomFinalized  = "attendance.room_finalized"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDelta  = "delta_ms"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, room, identity, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoom, room)
	if identity != "" {
		evt = evt.Str(log.FieldIdentity, identity)
	}
	evt.Msg(msg)
}

// LogDelta emits an audit log entry carrying a credited time delta.
func LogDelta(ctx context.Context, action, room, identity string, deltaMs int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoom, room).
		Str(log.FieldIdentity, identity).
		Int64(FieldDelta, deltaMs).
		Msg(msg)
}
