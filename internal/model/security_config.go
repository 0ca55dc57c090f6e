package model

// SecurityConfig is the set of integrity checks active for an exam session.
// It is loaded once before the session starts and never changes afterwards.
type SecurityConfig struct {
	Copy             bool `json:"copy"`
	Paste            bool `json:"paste"`
	Select           bool `json:"select"`
	Cut              bool `json:"cut"`
	Fullscreen       bool `json:"fullscreen"`
	TabSwitchWarning bool `json:"tabswitchwarning"`
}

// FailSecureConfig is used whenever the configuration source cannot be read:
// every check is enabled.
func FailSecureConfig() SecurityConfig {
	return SecurityConfig{
		Copy:             true,
		Paste:            true,
		Select:           true,
		Cut:              true,
		Fullscreen:       true,
		TabSwitchWarning: true,
	}
}

// Monitored reports whether any focus or fullscreen check is active. The
// lobby shows the auto-submit notice only in that case.
func (c SecurityConfig) Monitored() bool {
	return c.Fullscreen || c.TabSwitchWarning
}

// CourseConfig is the payload served by the course configuration collaborator.
// Only the security block is consumed here; display metadata is ignored.
type CourseConfig struct {
	Security *SecurityConfig `json:"security"`
}
