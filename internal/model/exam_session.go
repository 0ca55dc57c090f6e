package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionPhase enumerates exam session states.
type SessionPhase string

const (
	PhaseNotStarted SessionPhase = "NOT_STARTED"
	PhaseRunning    SessionPhase = "RUNNING"
	PhaseSubmitting SessionPhase = "SUBMITTING"
	PhaseCompleted  SessionPhase = "COMPLETED"
)

// SubmitReason records which trigger ended the exam.
type SubmitReason string

const (
	SubmitManual     SubmitReason = "manual"
	SubmitTimeout    SubmitReason = "timeout"
	SubmitViolations SubmitReason = "violations"
	SubmitFullscreen SubmitReason = "fullscreen_unavailable"
)

// Forced reports whether the submission was triggered by policy rather than
// by the examinee.
func (r SubmitReason) Forced() bool {
	return r != SubmitManual
}

// ExamSession is one examinee's attempt at a subject level. SessionID is the
// correlation key for every gateway call; FinalSubmitted is a one-way latch.
type ExamSession struct {
	SessionID      uuid.UUID    `json:"session_id"`
	Subject        string       `json:"subject"`
	Level          string       `json:"level"`
	Examinee       string       `json:"examinee"`
	Ready          bool         `json:"ready"`
	Started        bool         `json:"started"`
	TimeLeft       int          `json:"time_left"`
	FinalSubmitted bool         `json:"final_submitted"`
	Phase          SessionPhase `json:"phase"`
	SubmitReason   SubmitReason `json:"submit_reason,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

// SessionSnapshot is the read-only view handed to the presentation layer.
type SessionSnapshot struct {
	// Version increases with every snapshot of a session; the page drops
	// any state older than the last one it applied.
	Version           uint64         `json:"version"`
	Session           ExamSession    `json:"session"`
	Security          SecurityConfig `json:"security"`
	Violations        ViolationState `json:"violations"`
	Warning           string         `json:"warning,omitempty"`
	ConfirmPending    bool           `json:"confirm_pending"`
	Executing         bool           `json:"executing"`
	SubmissionMessage string         `json:"submission_message,omitempty"`
	Tasks             []TaskView     `json:"tasks"`
}

// SubmissionOutcome describes how a final submission ended.
type SubmissionOutcome struct {
	Reason      SubmitReason     `json:"reason"`
	AllPassed   bool             `json:"all_passed"`
	Delivered   bool             `json:"delivered"`
	Message     string           `json:"message"`
	UpdatedUser *ExamineeProfile `json:"updated_user,omitempty"`
}
