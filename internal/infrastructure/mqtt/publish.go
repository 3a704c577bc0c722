package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// The telemetry codec applies its own much smaller bound before this.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends payload to topic at the configured QoS, not retained.
//
// It never waits for the broker acknowledgment: a publish paho has queued
// counts as sent, and only an error already reported by the token is
// returned. A failed telemetry cycle is superseded by the next.
//
// Returns:
//   - error: nil once queued, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, byte(c.cfg.QoS), false, false)
}

// PublishRetained publishes a retained message with the configured QoS.
//
// Use for the device status topic so new subscribers see the last state.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, byte(c.cfg.QoS), true, true)
}

// AnnounceOnline publishes the retained online status document, if a
// status topic is configured.
func (c *Client) AnnounceOnline() error {
	if c.status.Topic == "" {
		return nil
	}
	_, clientID, ok := c.activeClient()
	if !ok {
		return ErrNotConnected
	}
	return c.PublishRetained(c.status.Topic, statusPayload(true, clientID, c.status.BootID, ""))
}

// publish sends one message. With wait set it blocks up to the publish
// timeout for the acknowledgment; otherwise it only inspects the token.
func (c *Client) publish(topic string, payload []byte, qos byte, retained, wait bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	pc, _, ok := c.activeClient()
	if !ok {
		return ErrNotConnected
	}

	token := pc.Publish(topic, qos, retained, payload)
	if wait {
		if !token.WaitTimeout(defaultPublishTimeout) {
			return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
		}
	} else {
		select {
		case <-token.Done():
		default:
			return nil
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
