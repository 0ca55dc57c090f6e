package model

// ViolationReason is the human-readable cause attached to a violation.
type ViolationReason string

const (
	ReasonSwitchedTabs       ViolationReason = "switched tabs"
	ReasonSwitchedWindow     ViolationReason = "switched window or application"
	ReasonExitedFullscreen   ViolationReason = "exited fullscreen"
	ReasonRestrictedShortcut ViolationReason = "used a restricted shortcut"
	ReasonSwitchAttempt      ViolationReason = "tried to switch tabs/windows"
	ReasonDevtoolsAttempt    ViolationReason = "tried to open developer tools"
	ReasonDevtoolsOpened     ViolationReason = "developer tools opened"
)

// ViolationCountInactive marks a session whose monitoring has not started.
const ViolationCountInactive = -1

// ViolationState tracks how many violations a session has accumulated.
// Count is -1 before the exam starts and never decreases.
type ViolationState struct {
	Count         int `json:"count"`
	MaxViolations int `json:"max_violations"`
}

// Active reports whether violations are being counted.
func (s ViolationState) Active() bool {
	return s.Count != ViolationCountInactive
}
