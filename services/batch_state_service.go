package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RangeError reports a batch index outside [0, BatchCount). This is a
// contract violation by the caller, distinct from "batch not yet produced".
type RangeError struct {
	BatchID    int
	BatchCount int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("batch index %d out of range [0, %d)", e.BatchID, e.BatchCount)
}

// BatchStateTracker answers whether a batch's selection artifact is present,
// fresh and structurally valid for a target date. It only ever reads the
// artifacts; the selection engine owns writing them.
//
// Batch files carry no date in their name, so a restart that crosses
// midnight can find yesterday's leftover on disk. The mtime check below is
// what keeps such a leftover from counting as done.
type BatchStateTracker struct {
	batchCount int
	batchDir   string
}

// NewBatchStateTracker creates a tracker over the given batch directory.
func NewBatchStateTracker(batchCount int, batchDir string) *BatchStateTracker {
	return &BatchStateTracker{
		batchCount: batchCount,
		batchDir:   batchDir,
	}
}

// BatchCount returns the configured number of batches.
func (t *BatchStateTracker) BatchCount() int {
	return t.batchCount
}

// BatchFilePath returns the artifact path for a batch slot.
func (t *BatchStateTracker) BatchFilePath(batchID int) string {
	return filepath.Join(t.batchDir, fmt.Sprintf("candidate_batch_%02d.json", batchID))
}

// IsBatchComplete reports whether the batch's artifact exists, is non-empty,
// was written on or after targetDate and parses as a JSON array or object.
// An out-of-range batchID fails with a RangeError rather than returning
// false, since it indicates a programming error upstream.
func (t *BatchStateTracker) IsBatchComplete(batchID int, targetDate time.Time) (bool, error) {
	if batchID < 0 || batchID >= t.batchCount {
		return false, &RangeError{BatchID: batchID, BatchCount: t.batchCount}
	}
	cutoff := startOfDay(targetDate)
	return CheckArtifact(t.BatchFilePath(batchID), cutoff), nil
}

// GetCompletionStatus partitions [0, BatchCount) into completed and
// incomplete batch IDs for the target date. The two slices are disjoint and
// together cover every ID.
func (t *BatchStateTracker) GetCompletionStatus(targetDate time.Time) (completed, incomplete []int) {
	cutoff := startOfDay(targetDate)
	for id := 0; id < t.batchCount; id++ {
		if CheckArtifact(t.BatchFilePath(id), cutoff) {
			completed = append(completed, id)
		} else {
			incomplete = append(incomplete, id)
		}
	}
	return completed, incomplete
}

// CheckArtifact reports whether the file at path is a usable pipeline
// artifact: it exists, is non-empty, was modified at or after cutoff, and
// parses as a JSON array or object. Missing, empty, stale or corrupt files
// all count as "not complete" — never as errors.
func CheckArtifact(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	// Zero length means a partial write was interrupted.
	if info.Size() == 0 {
		return false
	}
	if info.ModTime().Before(cutoff) {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var root interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return false
	}
	switch root.(type) {
	case []interface{}, map[string]interface{}:
		return true
	default:
		return false
	}
}

// startOfDay truncates a timestamp to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
