package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Run summarizes one consolidation pass
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Registered int       `json:"registered"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
}

// RecordRun stores the outcome of a consolidation pass
func (d *DB) RecordRun(run Run) (int64, error) {
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	res, err := d.conn.Exec(`
		INSERT INTO consolidation_runs (started_at, finished_at, registered, failures, error)
		VALUES (?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Registered, run.Failures, errText)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}

	return res.LastInsertId()
}

// GetRecentRuns returns the latest consolidation passes, newest first
func (d *DB) GetRecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.conn.Query(`
		SELECT id, started_at, finished_at, registered, failures, error
		FROM consolidation_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var errText sql.NullString
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Registered, &run.Failures, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Error = errText.String
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
