package model

// Field names follow the evaluation service's JSON contract.

// StartSessionRequest asks the gateway to initialize an execution sandbox.
type StartSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// RunRequest executes code with optional stdin.
type RunRequest struct {
	SessionID  string `json:"sessionId"`
	Code       string `json:"cellCode"`
	Input      string `json:"userInput"`
	Username   string `json:"username"`
	Subject    string `json:"subject"`
	Level      string `json:"level"`
	QuestionID string `json:"questionId"`
	PartID     string `json:"partId"`
}

// RunResponse is the sandbox output of a run.
type RunResponse struct {
	Stdout *string `json:"stdout"`
	Stderr *string `json:"stderr"`
}

// ValidateRequest evaluates code against the hidden tests of a task.
type ValidateRequest struct {
	SessionID  string `json:"sessionId"`
	Username   string `json:"username"`
	Subject    string `json:"subject"`
	Level      string `json:"level"`
	QuestionID string `json:"questionId"`
	PartID     string `json:"partId"`
	Code       string `json:"cellCode"`
}

// ValidateResponse carries one verdict per hidden test.
type ValidateResponse struct {
	TestResults []bool `json:"test_results"`
}

// Answer is one task's final code and verdict.
type Answer struct {
	QuestionID string `json:"questionId"`
	PartID     string `json:"partId"`
	Code       string `json:"code"`
	Passed     bool   `json:"passed"`
}

// SubmitRequest is the final submission of a session.
type SubmitRequest struct {
	SessionID string   `json:"sessionId"`
	Username  string   `json:"username"`
	Subject   string   `json:"subject"`
	Level     string   `json:"level"`
	Answers   []Answer `json:"answers"`
	AllPassed bool     `json:"allPassed"`
}

// SubmitResponse may carry the examinee's refreshed progress.
type SubmitResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	UpdatedUser *ExamineeProfile `json:"updatedUser"`
}

// RemotePart is a part entry of a content task.
type RemotePart struct {
	PartID      FlexID            `json:"part_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StarterCode string            `json:"starter_code"`
	Datasets    map[string]string `json:"datasets"`
}

// RemoteTask is a task as served by the content collaborator.
type RemoteTask struct {
	ID          FlexID            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Datasets    map[string]string `json:"datasets"`
	Parts       []RemotePart      `json:"parts"`
}

// Flatten merges the task with its first part, the part overriding task
// fields it sets. The task id keys the result.
func (t RemoteTask) Flatten() Task {
	task := Task{
		ID:          string(t.ID),
		TaskID:      string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		Datasets:    t.Datasets,
	}
	if len(t.Parts) == 0 {
		return task
	}
	p := t.Parts[0]
	task.PartID = string(p.PartID)
	task.StarterCode = p.StarterCode
	if p.Title != "" {
		task.Title = p.Title
	}
	if p.Description != "" {
		task.Description = p.Description
	}
	if p.Datasets != nil {
		task.Datasets = p.Datasets
	}
	return task
}
