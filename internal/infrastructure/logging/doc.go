// Package logging provides the agent's structured logger, a thin wrapper
// over log/slog.
//
// Entries carry service and version fields. Components log through a
// child logger from Component(name). Output is JSON by default or text for
// development:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Attributes keyed password, token or secret are always redacted.
package logging
