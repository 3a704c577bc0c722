package mqtt

import (
	"fmt"
)

// Subscribe subscribes the current session to topic.
//
// Matching messages are queued in the inbox and delivered by Poll to the
// inbound handler. Subscriptions are not remembered across sessions: the
// caller subscribes again after every Connect.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	pc, _, ok := c.activeClient()
	if !ok {
		return ErrNotConnected
	}

	token := pc.Subscribe(topic, qos, c.enqueueMessage)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
