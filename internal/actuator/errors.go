package actuator

import "errors"

// Domain errors for the actuator package.
var (
	// ErrInvalidLevel is returned by ParseLevel for unknown level names.
	ErrInvalidLevel = errors.New("actuator: invalid level")

	// ErrActuatorRequired is returned when a journal query has no actuator name.
	ErrActuatorRequired = errors.New("actuator: name is required")
)
