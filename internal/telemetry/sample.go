package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxPayload is the encoded size bound used when none is configured.
const DefaultMaxPayload = 256

var (
	// ErrPayloadTooLarge is returned when an encoded sample exceeds the bound.
	ErrPayloadTooLarge = errors.New("telemetry: payload too large")

	// ErrMalformed is returned by Decode for invalid documents.
	ErrMalformed = errors.New("telemetry: malformed payload")
)

// Sample is one telemetry reading.
type Sample struct {
	MsgID     int64   `json:"msg_id"`
	DeviceUID string  `json:"device_uid"`
	TempC     float64 `json:"temp_c"`
	Humidity  int     `json:"humidity"`
}

// Encode renders s as JSON, failing if the document exceeds maxSize bytes
// (0 for DefaultMaxPayload).
func Encode(s Sample, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPayload
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding sample: %w", err)
	}
	if len(payload) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return payload, nil
}

// Decode parses a telemetry document.
func Decode(payload []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}
