package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIsBatchCompleteRangeError(t *testing.T) {
	tracker := NewBatchStateTracker(18, t.TempDir())

	for _, id := range []int{-1, 18, 100} {
		_, err := tracker.IsBatchComplete(id, time.Now())
		require.Error(t, err, "batch %d", id)

		var rangeErr *RangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, id, rangeErr.BatchID)
		assert.Equal(t, 18, rangeErr.BatchCount)
	}
}

func TestIsBatchCompleteFreshArtifact(t *testing.T) {
	dir := t.TempDir()
	tracker := NewBatchStateTracker(18, dir)
	writeArtifact(t, tracker.BatchFilePath(3), `{"batch_id":3,"candidates":[]}`)

	complete, err := tracker.IsBatchComplete(3, time.Now())
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestIsBatchCompleteMissingFile(t *testing.T) {
	tracker := NewBatchStateTracker(18, t.TempDir())

	complete, err := tracker.IsBatchComplete(0, time.Now())
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestIsBatchCompleteStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	tracker := NewBatchStateTracker(18, dir)

	path := tracker.BatchFilePath(5)
	writeArtifact(t, path, `{"batch_id":5}`)
	yesterday := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(path, yesterday, yesterday))

	complete, err := tracker.IsBatchComplete(5, time.Now())
	require.NoError(t, err)
	assert.False(t, complete, "yesterday's leftover must not count as complete")
}

func TestIsBatchCompleteRejectsBadContent(t *testing.T) {
	dir := t.TempDir()
	tracker := NewBatchStateTracker(18, dir)

	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"truncated json", `{"batch_id": 1, "cand`},
		{"scalar root", `42`},
		{"string root", `"done"`},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeArtifact(t, tracker.BatchFilePath(i), tt.content)
			complete, err := tracker.IsBatchComplete(i, time.Now())
			require.NoError(t, err)
			assert.False(t, complete)
		})
	}
}

func TestGetCompletionStatusPartition(t *testing.T) {
	dir := t.TempDir()
	tracker := NewBatchStateTracker(6, dir)
	now := time.Now()

	// 0: fresh, 1: missing, 2: corrupt, 3: stale, 4: fresh array, 5: empty
	writeArtifact(t, tracker.BatchFilePath(0), `{"candidates":[]}`)
	writeArtifact(t, tracker.BatchFilePath(2), `not json`)
	writeArtifact(t, tracker.BatchFilePath(3), `{"candidates":[]}`)
	yesterday := now.Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(tracker.BatchFilePath(3), yesterday, yesterday))
	writeArtifact(t, tracker.BatchFilePath(4), `[]`)
	writeArtifact(t, tracker.BatchFilePath(5), ``)

	completed, incomplete := tracker.GetCompletionStatus(now)
	assert.Equal(t, []int{0, 4}, completed)
	assert.Equal(t, []int{1, 2, 3, 5}, incomplete)

	// The partition covers every ID exactly once.
	seen := make(map[int]bool)
	for _, id := range append(append([]int{}, completed...), incomplete...) {
		assert.False(t, seen[id], "batch %d appears twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 6)
}

func TestWriteJSONAtomicVisibleToTracker(t *testing.T) {
	dir := t.TempDir()
	tracker := NewBatchStateTracker(18, dir)

	artifact := &BatchArtifact{
		BatchID:     7,
		TargetDate:  time.Now().Format("2006-01-02"),
		GeneratedAt: time.Now(),
		Candidates: []BatchCandidate{
			{Symbol: "VNM", Rank: 1, Score: "5.1234", Price: "65000.00", Volume: 120000},
		},
	}
	require.NoError(t, WriteBatchArtifact(tracker.BatchFilePath(7), artifact))

	complete, err := tracker.IsBatchComplete(7, time.Now())
	require.NoError(t, err)
	assert.True(t, complete)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(tracker.BatchFilePath(7)), entries[0].Name())

	read, err := ReadBatchArtifact(tracker.BatchFilePath(7))
	require.NoError(t, err)
	assert.Equal(t, 7, read.BatchID)
	require.Len(t, read.Candidates, 1)
	assert.Equal(t, "VNM", read.Candidates[0].Symbol)
}
