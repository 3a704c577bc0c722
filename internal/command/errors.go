package command

import "errors"

// Domain errors for the command package.
var (
	// ErrMalformed is returned when a payload is not valid JSON.
	ErrMalformed = errors.New("command: malformed payload")

	// ErrPayloadTooLarge is returned when a payload exceeds the decode bound.
	ErrPayloadTooLarge = errors.New("command: payload too large")
)
