package model

// Outcomes of a single oracle attempt.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// OracleAttempt is one call (or deliberate non-call) to the classification oracle.
type OracleAttempt struct {
	Subject  string
	Strategy string
	Outcome  string
	Detail   string
}
