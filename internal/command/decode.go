package command

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxPayload is the decode bound used when none is configured.
const DefaultMaxPayload = 256

// Recognised command names.
const (
	LEDOn  = "led_on"
	LEDOff = "led_off"
)

// Message is a decoded command. Name is "" when the document carries no
// string "cmd" field.
type Message struct {
	Name string
}

// Decode parses a command payload.
//
// Any well-formed JSON document decodes; only a string "cmd" member of a
// top-level object yields a Name.
//
// Returns:
//   - Message: The decoded command
//   - error: ErrPayloadTooLarge or wrapped ErrMalformed
func Decode(payload []byte, maxSize int) (Message, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPayload
	}
	if len(payload) > maxSize {
		return Message{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxSize)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Message{}, nil
	}
	name, _ := obj["cmd"].(string) //nolint:errcheck // non-string cmd matches nothing
	return Message{Name: name}, nil
}
