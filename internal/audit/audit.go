package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// Audit actions for collab-service.
const (
	ActionConnect      = "collab.connect"
	ActionAuthFailed   = "collab.auth_failed"
	ActionJoinRoom     = "collab.join_room"
	ActionLeaveRoom    = "collab.leave_room"
	ActionDisconnect   = "collab.disconnect"
	ActionAIInvocation = "collab.ai_invocation"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, userID, targetID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Str(FieldDetail, detail).
		Msg(msg)
}
