package statedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/termlens/internal/stream"
)

func openTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "termlens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	var version string
	err := db.DB().QueryRow(
		"SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termlens.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.InsertUsage(UsageRow{ToolName: "Read"}))
	require.NoError(t, db.Close())

	// Reopening an existing database must not disturb its rows.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.RecentUsage(10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInsertAndRecentUsage(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Minute)
	for i, name := range []string{"Read", "Bash", "Write"} {
		require.NoError(t, db.InsertUsage(UsageRow{
			SessionID:  "sess-1",
			ToolName:   name,
			Input:      "in-" + name,
			Success:    i != 1,
			DurationMs: int64(i * 100),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	rows, err := db.RecentUsage(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Write", rows[0].ToolName, "newest first")
	assert.Equal(t, "Bash", rows[1].ToolName)
	assert.False(t, rows[1].Success)
	assert.Equal(t, "in-Bash", rows[1].Input)
}

func TestRecentUsageDefaultLimit(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.InsertUsage(UsageRow{ToolName: "Read"}))
	rows, err := db.RecentUsage(0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSinkPersistsAsync(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, 16, 1000)

	err := sink.SaveToolUsage(stream.ToolUsageRecord{
		SessionID:  "sess-9",
		ToolName:   "Grep",
		Input:      "pattern",
		Success:    true,
		DurationMs: 42,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rows, err := db.RecentUsage(10)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)

	rows, err := db.RecentUsage(10)
	require.NoError(t, err)
	assert.Equal(t, "Grep", rows[0].ToolName)
	assert.Equal(t, int64(42), rows[0].DurationMs)
	assert.True(t, rows[0].Success)

	sink.Close()
}

func TestSinkCloseDrainsQueue(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, 64, 1000)

	for i := 0; i < 10; i++ {
		require.NoError(t, sink.SaveToolUsage(stream.ToolUsageRecord{ToolName: "Read"}))
	}
	sink.Close()

	rows, err := db.RecentUsage(100)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	sink := NewSink(db, 4, 100)
	sink.Close()
	sink.Close()
}
