package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const measurementTelemetry = "telemetry"

// WriteTelemetry queues one telemetry sample. It does nothing once the
// client is closed.
//
// Parameters:
//   - deviceUID: Device identifier, stored as the device_uid tag
//   - msgID: Sample message id
//   - tempC: Temperature in degrees Celsius
//   - humidity: Relative humidity in percent
//   - at: Sample time
func (c *Client) WriteTelemetry(deviceUID string, msgID int64, tempC float64, humidity int, at time.Time) {
	if c.isClosed() {
		return
	}

	point := write.NewPoint(
		measurementTelemetry,
		map[string]string{
			"device_uid": deviceUID,
		},
		map[string]any{
			"msg_id":   msgID,
			"temp_c":   tempC,
			"humidity": humidity,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
	c.queued.Add(1)
}
