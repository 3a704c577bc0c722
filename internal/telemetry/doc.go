// Package telemetry builds, encodes and publishes periodic device readings.
//
// Each Emit constructs a fresh Sample, encodes it as a JSON document of at
// most the configured size and publishes it once on
// <namespace>/devices/<uid>/telemetry. Failed publishes are logged and not
// retried; the next cycle produces a new sample.
//
// Wire format:
//
//	{"msg_id":5000,"device_uid":"dev-esp32-01","temp_c":24.1,"humidity":57}
package telemetry
