package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: mirror disabled")

	// ErrUnreachable wraps a failed ping at connect or health-check time.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrUnhealthy means the server answered the ping but reported not ready.
	ErrUnhealthy = errors.New("influxdb: server not ready")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: mirror closed")
)
