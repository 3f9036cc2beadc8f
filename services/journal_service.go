package services

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// JournalEntry is one recorded job or recovery execution.
type JournalEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Phase     string    `json:"phase"`
	Source    string    `json:"source"` // schedule, recovery or manual
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail"`
}

// JournalService keeps a local SQLite journal of every pipeline execution.
// It exists for the status API and post-incident review; the scheduler never
// reads it back for decisions, so a journal failure degrades observability
// only.
type JournalService struct {
	db *sql.DB
	mu sync.Mutex
}

// NewJournalService opens (or creates) the journal database.
func NewJournalService(path string) (*JournalService, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	js := &JournalService{db: db}
	if err := js.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create journal tables: %w", err)
	}
	return js, nil
}

// createTables creates the journal schema if missing.
func (j *JournalService) createTables() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS job_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			source TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_job_journal_started ON job_journal(started_at);
		CREATE INDEX IF NOT EXISTS idx_job_journal_job ON job_journal(job_id);
	`)
	return err
}

// Record appends one execution to the journal. Errors are logged and
// swallowed; journaling must never fail a job.
func (j *JournalService) Record(entry JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO job_journal (job_id, phase, source, started_at, duration_ms, success, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID, entry.Phase, entry.Source, entry.StartedAt,
		entry.Duration, boolToInt(entry.Success), entry.Detail,
	)
	if err != nil {
		log.Printf("Error writing journal entry for %s: %v", entry.JobID, err)
	}
}

// Recent returns the most recent journal entries, newest first.
func (j *JournalService) Recent(limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, job_id, phase, source, started_at, duration_ms, success, detail
		 FROM job_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var success int
		if err := rows.Scan(&e.ID, &e.JobID, &e.Phase, &e.Source, &e.StartedAt,
			&e.Duration, &success, &e.Detail); err != nil {
			return nil, err
		}
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneBefore deletes journal entries older than the cutoff and returns the
// number removed.
func (j *JournalService) PruneBefore(cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(`DELETE FROM job_journal WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the journal database.
func (j *JournalService) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
