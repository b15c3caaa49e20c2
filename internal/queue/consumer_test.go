package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestAppendToLog(t *testing.T) {
	chdir(t, t.TempDir())

	ev := SwapEvent{
		EventID:            "evt-1",
		Type:               EventSwapRequestCreated,
		RecipientUserID:    20,
		RequestID:          5,
		RequesterName:      "Dana",
		RequesterSlotTitle: "standup",
		TargetSlotTitle:    "review",
		OccurredAt:         "2026-01-02T15:04:05Z",
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, appendToLog(body))
	require.NoError(t, appendToLog(body)) // appends, does not truncate

	data, err := os.ReadFile(filepath.Join("logs", "swap.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), EventSwapRequestCreated)
	assert.Contains(t, string(data), `requester="Dana"`)
	assert.Equal(t, 2, len(splitLines(string(data))))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func TestAppendToLogRejectsGarbage(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Error(t, appendToLog([]byte("not json")))
}
