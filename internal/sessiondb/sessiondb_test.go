package sessiondb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err, "open session index")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStageUpdatesAccumulate(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("s1", "/data/s1", 1000, 12))
	require.NoError(t, db.RecordTracking("s1", 12, 0.75))
	require.NoError(t, db.RecordReconstruction("s1", 4821, true, "high"))

	row, err := db.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 12, row.Keyframes)
	assert.Equal(t, 12, row.PoseCount)
	assert.Equal(t, 0.75, row.GoodRatio)
	assert.Equal(t, 4821, row.PointCount)
	assert.True(t, row.MeshGenerated)
	assert.Equal(t, "high", row.QualityProfile)
}

func TestRecordCaptureIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("s1", "/a", 1, 3))
	require.NoError(t, db.RecordCapture("s1", "/b", 2, 5))

	row, err := db.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "/b", row.Root, "re-capture should update in place")
	assert.Equal(t, 5, row.Keyframes)

	rows, err := db.ListSessions()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStageUpdateWithoutCaptureFails(t *testing.T) {
	db := openTestDB(t)

	err := db.RecordTracking("ghost", 2, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not indexed")
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordCapture("old", "/old", 100, 1))
	require.NoError(t, db.RecordCapture("new", "/new", 200, 1))

	rows, err := db.ListSessions()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0].SessionID)
	assert.Equal(t, "old", rows[1].SessionID)
}

func TestOpenTwiceReappliesNoMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.RecordCapture("s1", "/a", 1, 1))
	db1.Close()

	db2, err := Open(path)
	require.NoError(t, err, "reopening an up-to-date index must succeed")
	defer db2.Close()

	_, err = db2.GetSession("s1")
	assert.NoError(t, err, "data should survive reopen")
}
