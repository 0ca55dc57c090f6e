package gateway

import "fmt"

// StatusError is returned when the evaluation service answers with a non-2xx
// status.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server responded with status: %d", e.Code)
}
