package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID accepts identifiers the content service may send as either JSON
// strings or numbers.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexID(n.String())
	return nil
}

// Task is a single gradable unit of work. ID keys the per-task code state;
// TaskID and PartID are what the gateway knows it by.
type Task struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	PartID      string            `json:"part_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StarterCode string            `json:"starter_code"`
	Datasets    map[string]string `json:"datasets,omitempty"`
}

// RunResult is the last output shown for a task. Stdout and Stderr are nil
// when the gateway omitted them.
type RunResult struct {
	Stdout      *string `json:"stdout,omitempty"`
	Stderr      *string `json:"stderr,omitempty"`
	TestResults []bool  `json:"test_results,omitempty"`
}

// HasError reports whether the run produced error output.
func (r *RunResult) HasError() bool {
	return r != nil && r.Stderr != nil && *r.Stderr != ""
}

// CodeState is the examinee's working state for one task. Validated is nil
// until a run or validation is attempted.
type CodeState struct {
	Code               string     `json:"code"`
	LastResult         *RunResult `json:"last_result"`
	Validated          *bool      `json:"validated"`
	CustomInput        string     `json:"custom_input"`
	CustomInputEnabled bool       `json:"custom_input_enabled"`
}

// TaskStatus is the progress marker shown in the task navigator.
type TaskStatus string

const (
	TaskNotAttempted TaskStatus = "NOT_ATTEMPTED"
	TaskAttempted    TaskStatus = "ATTEMPTED"
	TaskPassed       TaskStatus = "PASSED"
)

// Status derives the navigator marker from the code state.
func (s CodeState) Status() TaskStatus {
	switch {
	case s.Validated != nil && *s.Validated:
		return TaskPassed
	case s.Validated != nil, strings.TrimSpace(s.Code) != "":
		return TaskAttempted
	default:
		return TaskNotAttempted
	}
}

// Passed reports whether every hidden test passed for the current code.
func (s CodeState) Passed() bool {
	return s.Validated != nil && *s.Validated
}

// TaskView pairs a task with its current code state.
type TaskView struct {
	Task   Task       `json:"task"`
	State  CodeState  `json:"state"`
	Status TaskStatus `json:"status"`
}
