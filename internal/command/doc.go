// Package command decodes inbound command messages and applies them to the
// actuator.
//
// A command is a JSON object whose "cmd" field names the action:
//
//	{"cmd":"led_on"}
//	{"cmd":"led_off"}
//
// Other fields are ignored. Malformed payloads are logged and dropped.
// Unknown command names are logged and otherwise ignored; no
// acknowledgment is ever published.
package command
