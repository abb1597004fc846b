package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("REVIEWLOG_DB", "")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func dbPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func qaPrompt(question string) ir.Prompt {
	return ir.Prompt{
		Type: ir.QAPromptType,
		Body: ir.IRObject{
			"question": ir.IRString(question),
			"answer":   ir.IRString("42"),
		},
	}
}

func ingestLog(t *testing.T, taskID string, clientMillis int64) ir.ActionLog {
	t.Helper()
	log, err := ir.ActionLog{
		Type:            ir.IngestActionLogType,
		TaskID:          taskID,
		ParentIDs:       []string{},
		TimestampMillis: clientMillis,
		Metadata:        ir.IRObject{"source": ir.IRString("cli-test")},
	}.WithID()
	require.NoError(t, err)
	return log
}

func repetitionLog(t *testing.T, taskID string, clientMillis int64, outcome ir.RepetitionOutcome, parents ...string) ir.ActionLog {
	t.Helper()
	log, err := ir.ActionLog{
		Type:            ir.RepetitionActionLogType,
		TaskID:          taskID,
		ParentIDs:       parents,
		TimestampMillis: clientMillis,
		Outcome:         outcome,
	}.WithID()
	require.NoError(t, err)
	return log
}

// writeBatch writes a JSON batch file accepted by the ingest command.
func writeBatch(t *testing.T, prompts map[string]ir.Prompt, logs ...ir.ActionLog) string {
	t.Helper()
	if logs == nil {
		logs = []ir.ActionLog{}
	}
	data, err := json.Marshal(map[string]any{
		"prompts": prompts,
		"logs":    logs,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// decodeResponse parses a JSON CLI response, decoding Data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
