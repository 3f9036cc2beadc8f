package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BatchCandidate is one instrument inside a batch artifact.
type BatchCandidate struct {
	Symbol string `json:"symbol"`
	Rank   int    `json:"rank"`
	Score  string `json:"score"`
	Price  string `json:"price"`
	Volume int64  `json:"volume"`
}

// BatchArtifact is the JSON document the selection engine writes per batch
// slot and the execution engine consumes. Object root, per the filesystem
// contract.
type BatchArtifact struct {
	BatchID     int              `json:"batch_id"`
	TargetDate  string           `json:"target_date"`
	GeneratedAt time.Time        `json:"generated_at"`
	Candidates  []BatchCandidate `json:"candidates"`
}

// WriteBatchArtifact writes the artifact atomically so readers never observe
// a partially written file as the steady state.
func WriteBatchArtifact(path string, artifact *BatchArtifact) error {
	return WriteJSONAtomic(path, artifact)
}

// WriteJSONAtomic marshals v and publishes it with a temp-file-then-rename
// in the target directory.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	return nil
}

// ReadBatchArtifact loads and parses a batch artifact.
func ReadBatchArtifact(path string) (*BatchArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact BatchArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("corrupt batch artifact %s: %w", path, err)
	}
	return &artifact, nil
}
