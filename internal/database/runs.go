package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// StartRun records the start of a stage and returns the new run's id.
func (db *DB) StartRun(stage string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, stage, started_at, status) VALUES (?, ?, ?, ?)",
		id, stage, time.Now().UTC().Format(timeLayout), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("starting %s run: %w", stage, err)
	}
	return id, nil
}

// FinishRun closes a run with its summary. A non-nil runErr marks it failed
// and is stored as the summary.
func (db *DB) FinishRun(id, summary string, runErr error) error {
	status := StatusOK
	if runErr != nil {
		status = StatusFailed
		summary = runErr.Error()
	}
	res, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, status = ?, summary = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), status, summary, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		"SELECT id, stage, started_at, finished_at, status, summary FROM runs WHERE id = ?", id,
	)
	return scanRun(row)
}

// GetLastRun returns the most recently started run, or nil without runs.
// An empty stage matches every stage.
func (db *DB) GetLastRun(stage string) (*Run, error) {
	query := "SELECT id, stage, started_at, finished_at, status, summary FROM runs"
	var args []any
	if stage != "" {
		query += " WHERE stage = ?"
		args = append(args, stage)
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT 1"
	return scanRun(db.conn.QueryRow(query, args...))
}

// GetRecentRuns returns up to limit runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, stage, started_at, finished_at, status, summary
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
		summary  sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Stage, &started, &finished, &r.Status, &summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at of run %s: %w", r.ID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at of run %s: %w", r.ID, err)
		}
		r.FinishedAt = &t
	}
	if summary.Valid {
		r.Summary = &summary.String
	}
	return &r, nil
}
