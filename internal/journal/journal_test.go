package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/registry"
)

var _ registry.Recorder = (*DB)(nil)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordEvent("added", "data1", "/dev/sdc1", nil))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 2, version)

	events, err := db.GetRecentEvents(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordEvent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordEvent("added", "data1", "/dev/sdc1", map[string]interface{}{"mount_point": "/data"}))
	require.NoError(t, db.RecordEvent("removed", "data1", "", nil))
	require.NoError(t, db.RecordEvent("added", "data2", "/dev/sdd1", nil))

	recent, err := db.GetRecentEvents(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "data2", recent[0].MapperName)
	assert.Equal(t, "removed", recent[1].EventType)
	assert.Equal(t, "", recent[1].DevPath)
	assert.False(t, recent[0].Timestamp.IsZero())

	byMapper, err := db.GetMapperEvents("data1", 10)
	require.NoError(t, err)
	require.Len(t, byMapper, 2)
	assert.Equal(t, "added", byMapper[1].EventType)
	assert.JSONEq(t, `{"mount_point":"/data"}`, byMapper[1].Details)

	byType, err := db.GetEventsByType("added", 10)
	require.NoError(t, err)
	assert.Len(t, byType, 2)
}

func TestRecordRun(t *testing.T) {
	db := openTestDB(t)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := db.RecordRun(Run{StartedAt: start, FinishedAt: start.Add(3 * time.Second), Registered: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = db.RecordRun(Run{StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour), Failures: 1, Error: "unlock failed"})
	require.NoError(t, err)

	runs, err := db.GetRecentRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "unlock failed", runs[0].Error)
	assert.Equal(t, 1, runs[0].Failures)
	assert.Equal(t, 2, runs[1].Registered)
	assert.Equal(t, "", runs[1].Error)
	assert.True(t, runs[1].StartedAt.Equal(start))
}
