package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/reviewlog/internal/ir"
)

var testEpoch = time.Unix(1_700_000_000, 0)

// createTestStore creates a new store in a temp dir with a frozen wall
// clock, so server timestamps advance one nanosecond per accepted log.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testEpoch }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLog creates a repetition log with minimal required fields.
func createTestLog(taskID string, tsMillis int64, outcome ir.RepetitionOutcome, parents ...string) ir.ActionLog {
	if parents == nil {
		parents = []string{}
	}
	return ir.ActionLog{
		Type:            ir.RepetitionActionLogType,
		TaskID:          taskID,
		ParentIDs:       parents,
		TimestampMillis: tsMillis,
		Outcome:         outcome,
	}
}

// createIngestLog creates a root ingest log.
func createIngestLog(taskID string, tsMillis int64) ir.ActionLog {
	return ir.ActionLog{
		Type:            ir.IngestActionLogType,
		TaskID:          taskID,
		ParentIDs:       []string{},
		TimestampMillis: tsMillis,
	}
}
