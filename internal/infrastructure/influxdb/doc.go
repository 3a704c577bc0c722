// Package influxdb mirrors telemetry samples into a local InfluxDB v2
// bucket.
//
// The mirror is optional (influxdb.enabled) and sits beside the broker
// publish: each emitted sample becomes one "telemetry" point tagged with
// the device UID. Writes are batched and non-blocking, so a slow or
// unreachable InfluxDB never delays the scheduler. Async write errors are
// reported through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("dev-esp32-01", 5000, 24.1, 57, time.Now())
package influxdb
