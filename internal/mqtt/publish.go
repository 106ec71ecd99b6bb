package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize caps outbound messages at 256 KiB, the smallest limit
// among common hosted brokers.
const maxPayloadSize = 256 << 10

// Publish sends payload to topic and waits for the broker's acknowledgement
// (for QoS > 0) up to defaultPublishTimeout.
//
// Publish never retries. Wildcards are rejected: they are legal only in
// subscriptions.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
