package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind classifies audit trail entries.
type ProctorEventKind string

const (
	EventKindStarted   ProctorEventKind = "STARTED"
	EventKindViolation ProctorEventKind = "VIOLATION"
	EventKindSubmitted ProctorEventKind = "SUBMITTED"
)

// ProctorEvent is one entry of a session's integrity audit trail.
type ProctorEvent struct {
	ID         uuid.UUID        `json:"id"`
	SessionID  uuid.UUID        `json:"session_id"`
	Examinee   string           `json:"examinee"`
	Subject    string           `json:"subject"`
	Level      string           `json:"level"`
	Kind       ProctorEventKind `json:"kind"`
	Reason     string           `json:"reason,omitempty"`
	Count      int              `json:"count"`
	RecordedAt time.Time        `json:"recorded_at"`
}
