package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *JournalService {
	t.Helper()
	js, err := NewJournalService(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { js.Close() })
	return js
}

func TestJournalRecordAndRecent(t *testing.T) {
	js := newTestJournal(t)

	js.Record(JournalEntry{
		JobID: "screening", Phase: "screening", Source: "schedule",
		StartedAt: time.Now(), Duration: 1200, Success: true, Detail: `{"candidates":90}`,
	})
	js.Record(JournalEntry{
		JobID: "batch_03", Phase: "batch_selection", Source: "recovery",
		StartedAt: time.Now(), Duration: 400, Success: false, Detail: `{"error":"api down"}`,
	})

	entries, err := js.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "batch_03", entries[0].JobID)
	assert.Equal(t, "recovery", entries[0].Source)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "screening", entries[1].JobID)
	assert.True(t, entries[1].Success)
}

func TestJournalPruneBefore(t *testing.T) {
	js := newTestJournal(t)
	now := time.Now()

	js.Record(JournalEntry{JobID: "old", Phase: "screening", Source: "schedule", StartedAt: now.AddDate(0, 0, -45)})
	js.Record(JournalEntry{JobID: "new", Phase: "screening", Source: "schedule", StartedAt: now})

	removed, err := js.PruneBefore(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := js.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].JobID)
}

func TestJournalRecentLimitClamped(t *testing.T) {
	js := newTestJournal(t)
	for i := 0; i < 3; i++ {
		js.Record(JournalEntry{JobID: "health_check", Phase: "health_check", Source: "schedule", StartedAt: time.Now()})
	}

	entries, err := js.Recent(-5)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = js.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
