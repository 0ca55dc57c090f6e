package websocket

import (
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal             Action = "signal"
	ActionStartExam          Action = "start_exam"
	ActionFullscreenResult   Action = "fullscreen_result"
	ActionEditCode           Action = "edit_code"
	ActionCustomInput        Action = "custom_input"
	ActionRun                Action = "run"
	ActionValidate           Action = "validate"
	ActionAttemptSubmit      Action = "attempt_submit"
	ActionConfirmSubmit      Action = "confirm_submit"
	ActionCancelSubmit       Action = "cancel_submit"
	ActionAcknowledgeWarning Action = "acknowledge_warning"
	ActionPing               Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SignalRequest forwards one browser event.
type SignalRequest struct {
	Action Action         `json:"action"`
	Signal proctor.Signal `json:"signal"`
}

// FullscreenResultRequest answers a request_fullscreen event.
type FullscreenResultRequest struct {
	Action    Action `json:"action"`
	RequestID string `json:"request_id" validate:"required"`
	Success   bool   `json:"success"`
	Error     string `json:"error"`
}

// EditCodeRequest replaces the code of a task.
type EditCodeRequest struct {
	Action Action `json:"action"`
	TaskID string `json:"task_id" validate:"required"`
	Code   string `json:"code"`
}

// CustomInputRequest sets the stdin sent with runs of a task.
type CustomInputRequest struct {
	Action  Action `json:"action"`
	TaskID  string `json:"task_id" validate:"required"`
	Input   string `json:"input"`
	Enabled bool   `json:"enabled"`
}

// TaskRequest targets a single task (run, validate).
type TaskRequest struct {
	Action Action `json:"action"`
	TaskID string `json:"task_id" validate:"required"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady             Event = "ready"
	EventState             Event = "state"
	EventArmed             Event = "armed"
	EventDisarmed          Event = "disarmed"
	EventBlocked           Event = "blocked"
	EventWarning           Event = "warning"
	EventNotice            Event = "notice"
	EventTask              Event = "task"
	EventTick              Event = "tick"
	EventRequestFullscreen Event = "request_fullscreen"
	EventConfirmSubmit     Event = "confirm_submit"
	EventSubmitted         Event = "submitted"
	EventIdentity          Event = "identity"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// ReadyResponse is sent once the execution session is initialized.
type ReadyResponse struct {
	Event    Event                 `json:"event"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
}

type StateResponse struct {
	Event    Event                 `json:"event"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
}

// ArmedResponse lists the signal kinds the page must forward and whose
// default action it must prevent.
type ArmedResponse struct {
	Event Event                `json:"event"`
	Kinds []proctor.SignalKind `json:"kinds"`
}

type DisarmedResponse struct {
	Event Event                `json:"event"`
	Kinds []proctor.SignalKind `json:"kinds"`
}

// BlockedResponse tells the page to prevent the default action of the
// signal it just reported.
type BlockedResponse struct {
	Event  Event              `json:"event"`
	Signal proctor.SignalKind `json:"signal"`
}

type WarningResponse struct {
	Event      Event                `json:"event"`
	Message    string               `json:"message"`
	Violations model.ViolationState `json:"violations"`
}

type NoticeResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

type TaskResponse struct {
	Event Event          `json:"event"`
	Task  model.TaskView `json:"task"`
}

type TickResponse struct {
	Event    Event `json:"event"`
	TimeLeft int   `json:"time_left"`
}

type RequestFullscreenResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id"`
}

type ConfirmSubmitResponse struct {
	Event  Event  `json:"event"`
	Prompt string `json:"prompt"`
}

type SubmittedResponse struct {
	Event   Event                   `json:"event"`
	Outcome model.SubmissionOutcome `json:"outcome"`
}

type IdentityResponse struct {
	Event   Event                 `json:"event"`
	Profile model.ExamineeProfile `json:"profile"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
