// Package actuator models the device's single digital output (the LED on
// the reference board) and an optional SQLite journal of its transitions
// and of the commands that were received.
package actuator
