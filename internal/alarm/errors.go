package alarm

import "errors"

// Domain errors for the alarm package.
var (
	// ErrAlarmNotFound is returned when an alarm ID does not exist.
	ErrAlarmNotFound = errors.New("alarm: not found")
)
