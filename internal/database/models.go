package database

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one execution of a pipeline stage.
type Run struct {
	ID         string
	Stage      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Summary    *string
}

// Attempt is a recorded oracle attempt.
type Attempt struct {
	ID          int64
	RunID       string
	Subject     string
	Strategy    string
	Outcome     string
	Detail      string
	AttemptedAt string
}

// Stats contains aggregate ledger statistics.
type Stats struct {
	Runs            int
	FailedRuns      int
	Attempts        int
	FailedAttempts  int
	SkippedAttempts int
	LastRun         *Run
}
