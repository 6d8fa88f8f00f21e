package models

import "time"

// SubmissionOutcome is the terminal result of one submission attempt.
type SubmissionOutcome string

const (
	OutcomeSucceeded SubmissionOutcome = "succeeded"
	OutcomeFailed    SubmissionOutcome = "failed"
	OutcomeRejected  SubmissionOutcome = "rejected"
)

// SubmissionRecord is one row of the submission history.
type SubmissionRecord struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Variant    Variant           `json:"variant"`
	Files      []string          `json:"files"`
	Bytes      int64             `json:"bytes"`
	Outcome    SubmissionOutcome `json:"outcome"`
	HTTPStatus int               `json:"httpStatus,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	DurationMs int64             `json:"durationMs"`
}

// SubmissionStats aggregates the history by outcome.
type SubmissionStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
}
