package database

import (
	"database/sql"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// InsertAttempt records one oracle attempt under a run.
func (db *DB) InsertAttempt(runID string, a model.OracleAttempt) error {
	_, err := db.conn.Exec(
		`INSERT INTO oracle_attempts (run_id, subject, strategy, outcome, detail)
		VALUES (?, ?, ?, ?, ?)`,
		runID, a.Subject, a.Strategy, a.Outcome, a.Detail,
	)
	return err
}

// GetAttempts returns the attempts recorded for a subject, oldest first.
func (db *DB) GetAttempts(subject string) ([]Attempt, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, subject, strategy, outcome, detail, attempted_at
		FROM oracle_attempts WHERE subject = ? ORDER BY id`, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a        Attempt
			strategy sql.NullString
			detail   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Subject, &strategy, &a.Outcome, &detail, &a.AttemptedAt); err != nil {
			return nil, err
		}
		a.Strategy = strategy.String
		a.Detail = detail.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RunRecorder records oracle attempts under a fixed run.
type RunRecorder struct {
	db    *DB
	runID string
}

// Recorder returns a recorder bound to runID.
func (db *DB) Recorder(runID string) *RunRecorder {
	return &RunRecorder{db: db, runID: runID}
}

// RecordAttempt stores one attempt.
func (r *RunRecorder) RecordAttempt(a model.OracleAttempt) error {
	return r.db.InsertAttempt(r.runID, a)
}

// GetStats returns aggregate ledger statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM oracle_attempts", &s.Attempts},
		{"SELECT COUNT(*) FROM oracle_attempts WHERE outcome = 'failed'", &s.FailedAttempts},
		{"SELECT COUNT(*) FROM oracle_attempts WHERE outcome = 'skipped'", &s.SkippedAttempts},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	last, err := db.GetLastRun("")
	if err != nil {
		return nil, err
	}
	s.LastRun = last
	return s, nil
}
