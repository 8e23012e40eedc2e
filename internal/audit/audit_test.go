package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

func TestLogWritesAuditEntry(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(log.Config{Level: "info", Output: &buf}))

	LogWithDetail(ctx, ActionAuthFailed, "u1", "proj-42", "INVALID_CREDENTIAL", "connection rejected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionAuthFailed, entry[FieldAction])
	assert.Equal(t, "u1", entry[log.FieldUserID])
	assert.Equal(t, "proj-42", entry[FieldTargetID])
	assert.Equal(t, "INVALID_CREDENTIAL", entry[FieldDetail])
	assert.Equal(t, "connection rejected", entry["message"])
}
