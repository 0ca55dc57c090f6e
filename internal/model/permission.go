package model

// Permission is a code carried in the permissions claim of admin tokens.
type Permission string

const (
	PermissionProctorMonitor    Permission = "proctor:monitor"
	PermissionProctorEventsRead Permission = "proctor:events:read"
)
