// Package ledger keeps an optional SQLite index of pipeline runs. The
// ledger is advisory: it answers "what ran on this machine, and did it
// finish" without inspecting per-run provenance files, and its failures
// never abort a run.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses recorded in the ledger.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ledger wraps the run-index database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Timestamps are stored as unix seconds.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tracto_runs (
			run_id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			status TEXT NOT NULL,
			params TEXT,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// StartRun inserts a new running row and returns its generated run ID.
func (l *Ledger) StartRun(subject string, params interface{}) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode run parameters: %w", err)
	}
	runID := uuid.New().String()
	_, err = l.db.Exec(
		"INSERT INTO tracto_runs (run_id, subject, status, params, started_at) VALUES (?, ?, ?, ?, ?)",
		runID, subject, StatusRunning, string(encoded), time.Now().Unix(),
	)
	if err != nil {
		return "", err
	}
	return runID, nil
}

// FinishRun marks a run completed or failed. errText is empty on success.
func (l *Ledger) FinishRun(runID, status, errText string) error {
	_, err := l.db.Exec(
		"UPDATE tracto_runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?",
		status, errText, time.Now().Unix(), runID,
	)
	return err
}

// Run is one row of the ledger.
type Run struct {
	RunID      string
	Subject    string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Recent returns the most recently started runs, newest first.
func (l *Ledger) Recent(limit int) ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT run_id, subject, status, COALESCE(error, ''), started_at, finished_at
		FROM tracto_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Subject, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			t := time.Unix(finished.Int64, 0)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
