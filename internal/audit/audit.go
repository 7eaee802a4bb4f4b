package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/realm-live/pkg/log"
)

// Action names an audited operation as "<resource>.<verb>".
type Action string

const (
	ActionRegister         Action = "user.register"
	ActionLogin            Action = "user.login"
	ActionLoginFailed      Action = "user.login_failed"
	ActionCreateProject    Action = "project.create"
	ActionDeleteProject    Action = "project.delete"
	ActionAddMember        Action = "project.add_member"
	ActionDeleteTask       Action = "task.delete"
	ActionWSAuth           Action = "ws.auth"
	ActionWSAuthFailed     Action = "ws.auth_failed"
	ActionWSDisconnect     Action = "ws.disconnect"
	ActionNotificationRead Action = "notification.read"
)

const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldOutcome  = "outcome"
)

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// Log records a successful action by userID.
func Log(ctx context.Context, action Action, userID string, msg string) {
	entry(ctx, zerolog.InfoLevel, action, userID, OutcomeAllowed).Msg(msg)
}

// LogTarget records a successful action by userID on targetID.
func LogTarget(ctx context.Context, action Action, userID string, targetID string, msg string) {
	entry(ctx, zerolog.InfoLevel, action, userID, OutcomeAllowed).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// Denied records a rejected attempt. userID may be empty when the caller is
// not yet known.
func Denied(ctx context.Context, action Action, userID string, targetID string, reason string) {
	entry(ctx, zerolog.WarnLevel, action, userID, OutcomeDenied).
		Str(FieldTargetID, targetID).
		Msg(reason)
}

func entry(ctx context.Context, level zerolog.Level, action Action, userID, outcome string) *zerolog.Event {
	l := log.Ctx(ctx)
	evt := l.WithLevel(level).
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, string(action)).
		Str(FieldOutcome, outcome)
	if userID != "" {
		evt = evt.Str(log.FieldUserID, userID)
	}
	return evt
}
