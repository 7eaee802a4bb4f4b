package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/realm-live/pkg/log"
)

func capture(t *testing.T, level string) (context.Context, func() map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.NewWithWriter(&buf, log.Config{Level: level}))
	return ctx, func() map[string]interface{} {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		return entry
	}
}

func TestLogTarget(t *testing.T) {
	ctx, read := capture(t, "info")

	LogTarget(ctx, ActionAddMember, "owner-1", "user-2", "member added")

	entry := read()
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, string(ActionAddMember), entry[FieldAction])
	assert.Equal(t, OutcomeAllowed, entry[FieldOutcome])
	assert.Equal(t, "owner-1", entry[log.FieldUserID])
	assert.Equal(t, "user-2", entry[FieldTargetID])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "member added", entry["message"])
}

func TestDenied_OmitsUnknownUser(t *testing.T) {
	ctx, read := capture(t, "info")

	Denied(ctx, ActionWSAuthFailed, "", "client-9", "websocket auth rejected")

	entry := read()
	assert.Equal(t, string(ActionWSAuthFailed), entry[FieldAction])
	assert.Equal(t, OutcomeDenied, entry[FieldOutcome])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "client-9", entry[FieldTargetID])
	assert.NotContains(t, entry, log.FieldUserID)
}

func TestLog_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.NewWithWriter(&buf, log.Config{Level: "warn"}))

	Log(ctx, ActionLogin, "u-1", "user logged in")
	assert.Zero(t, buf.Len())

	Denied(ctx, ActionLoginFailed, "", "a@example.com", "login failed")
	assert.NotZero(t, buf.Len())
}
