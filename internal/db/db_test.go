package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp())
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)

	require.NoError(t, database.MigrateUp())

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestArchiveAndQueryEvents(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	events := []vigil.MovementEvent{
		{Timestamp: base, Camera: "kitchen", Subject: "alice", Position: [2]float64{0.5, 0.5}, Confidence: 0.9},
		{Timestamp: base.Add(time.Hour), Camera: "garage", Subject: "bob", Position: [2]float64{0.2, 0.8}, Confidence: 0.8},
		{Timestamp: base.AddDate(0, 0, 1), Camera: "kitchen", Subject: "alice", Position: [2]float64{0.4, 0.6}, Confidence: 0.95},
	}
	for _, ev := range events {
		require.NoError(t, database.ArchiveEvent(ev))
	}

	got, err := database.EventsBetween(base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Subject)
	assert.Equal(t, "bob", got[1].Subject)
	assert.Equal(t, [2]float64{0.5, 0.5}, got[0].Position)

	day, err := database.EventsForDay(base, time.UTC)
	require.NoError(t, err)
	assert.Len(t, day, 2)

	recent, err := database.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, base.AddDate(0, 0, 1), recent[0].Timestamp)
}

func TestArchiveAndQueryNotifications(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	n := vigil.Notification{
		ID:        "n-1",
		Kind:      vigil.KindArrival,
		Camera:    "kitchen",
		Subject:   "alice",
		Message:   "alice arrived at kitchen",
		Severity:  vigil.SeverityLow,
		Timestamp: base,
	}
	require.NoError(t, database.ArchiveNotification(n))

	got, err := database.NotificationsBetween(base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n.ID, got[0].ID)
	assert.Equal(t, vigil.KindArrival, got[0].Kind)
	assert.Equal(t, vigil.SeverityLow, got[0].Severity)
	assert.Equal(t, n.Message, got[0].Message)
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)

	require.NoError(t, database.MigrateDown())

	// The tables are gone.
	err := database.ArchiveEvent(vigil.MovementEvent{
		Timestamp: time.Now(), Camera: "kitchen", Subject: "alice",
	})
	assert.Error(t, err)
}
