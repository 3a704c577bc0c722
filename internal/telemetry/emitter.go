package telemetry

import (
	"time"

	"github.com/nerrad567/devagent/internal/clock"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/mqtt"
)

// Publisher sends one payload. *session.Manager implements it.
type Publisher interface {
	Publish(topic string, payload []byte) bool
}

// Mirror receives a copy of every sample. *influxdb.Client implements it.
type Mirror interface {
	WriteTelemetry(deviceUID string, msgID int64, tempC float64, humidity int, at time.Time)
}

// Logger defines the logging interface for the emitter.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Emitter builds and publishes telemetry samples.
//
// Emit is called from the scheduler goroutine only.
type Emitter struct {
	publisher  Publisher
	sampler    Sampler
	clock      clock.Clock
	deviceUID  string
	topic      string
	maxPayload int

	// start anchors msg_id, which counts milliseconds of uptime.
	start     time.Time
	lastMsgID int64

	mirror Mirror
	logger Logger
	onEmit func(sent bool)
}

// NewEmitter creates an emitter for device.
//
// Parameters:
//   - publisher: Where encoded samples are sent
//   - sampler: Source of temperature and humidity
//   - device: Device identity (uid and namespace)
//   - maxPayload: Encoded size bound (0 for DefaultMaxPayload)
//   - clk: Clock for msg_id uptime (nil for the system clock)
func NewEmitter(publisher Publisher, sampler Sampler, device config.DeviceConfig, maxPayload int, clk clock.Clock) *Emitter {
	if clk == nil {
		clk = clock.Real{}
	}
	topics := mqtt.Topics{Namespace: device.Namespace, DeviceUID: device.UID}
	return &Emitter{
		publisher:  publisher,
		sampler:    sampler,
		clock:      clk,
		deviceUID:  device.UID,
		topic:      topics.Telemetry(),
		maxPayload: maxPayload,
		start:      clk.Now(),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the emitter.
func (e *Emitter) SetLogger(logger Logger) {
	e.logger = logger
}

// SetMirror attaches a local copy sink; nil disables it.
func (e *Emitter) SetMirror(mirror Mirror) {
	e.mirror = mirror
}

// OnEmit registers a callback run after each Emit with its outcome.
func (e *Emitter) OnEmit(fn func(sent bool)) {
	e.onEmit = fn
}

// Topic returns the telemetry topic.
func (e *Emitter) Topic() string {
	return e.topic
}

// Emit samples, encodes and publishes one reading. It reports whether the
// publish succeeded. Nothing is retried.
func (e *Emitter) Emit() bool {
	sample := e.next()

	payload, err := Encode(sample, e.maxPayload)
	if err != nil {
		e.logger.Error("telemetry encode failed", "msg_id", sample.MsgID, "error", err)
		e.report(false)
		return false
	}

	if e.mirror != nil {
		e.mirror.WriteTelemetry(sample.DeviceUID, sample.MsgID, sample.TempC, sample.Humidity, e.clock.Now())
	}

	sent := e.publisher.Publish(e.topic, payload)
	if sent {
		e.logger.Info("telemetry sent", "topic", e.topic, "payload", string(payload))
	} else {
		e.logger.Error("telemetry failed", "topic", e.topic, "payload", string(payload))
	}
	e.report(sent)
	return sent
}

// next builds a fresh sample. msg_id is uptime in milliseconds, bumped
// when needed so that it always increases.
func (e *Emitter) next() Sample {
	id := e.clock.Now().Sub(e.start).Milliseconds()
	if id <= e.lastMsgID {
		id = e.lastMsgID + 1
	}
	e.lastMsgID = id

	tempC, humidity := e.sampler.Read()
	return Sample{
		MsgID:     id,
		DeviceUID: e.deviceUID,
		TempC:     tempC,
		Humidity:  humidity,
	}
}

func (e *Emitter) report(sent bool) {
	if e.onEmit != nil {
		e.onEmit(sent)
	}
}
