package mqtt

import "fmt"

// Topics builds the per-device topic names. The layout is fixed by the
// backend that consumes telemetry and issues commands:
//
//	<namespace>/devices/<device_uid>/<leaf>
type Topics struct {
	Namespace string
	DeviceUID string
}

// Commands returns the topic the device subscribes to for commands.
//
// Example: t0/devices/dev-esp32-01/commands
func (t Topics) Commands() string {
	return t.device("commands")
}

// Telemetry returns the topic telemetry samples are published to.
//
// Example: t0/devices/dev-esp32-01/telemetry
func (t Topics) Telemetry() string {
	return t.device("telemetry")
}

// Status returns the retained online/offline status topic.
//
// Example: t0/devices/dev-esp32-01/status
func (t Topics) Status() string {
	return t.device("status")
}

func (t Topics) device(leaf string) string {
	return fmt.Sprintf("%s/devices/%s/%s", t.Namespace, t.DeviceUID, leaf)
}
