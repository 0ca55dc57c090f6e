package model

// ExamineeProfile is the user/progress record returned by the gateway when a
// submission unlocks the next level.
type ExamineeProfile struct {
	Username string                       `json:"username"`
	RollNo   string                       `json:"rollno,omitempty"`
	Role     string                       `json:"role,omitempty"`
	Progress map[string]map[string]string `json:"progress,omitempty"`
}
