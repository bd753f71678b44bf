package models

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeError is the user-facing error attached to a failed outcome.
type OutcomeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PipelineOutcome is the single result persisted for one pipeline invocation.
type PipelineOutcome struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	AttemptID  string        `json:"attempt_id"`
	Question   string        `json:"question"`
	SQL        *string       `json:"sql"`
	RowCount   int           `json:"row_count"`
	Chart      *Chart        `json:"chart"`
	Summary    string        `json:"summary"`
	// Narrative is Summary without the rendered result table. It is not
	// stored with the outcome.
	Narrative  string        `json:"-"`
	Error      *OutcomeError `json:"error"`
	FinalState string        `json:"final_state"`
	CreatedAt  time.Time     `json:"created_at"`
}
