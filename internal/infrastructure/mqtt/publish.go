package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize caps outbound payloads at 1 MB. Device state and
// status messages are small; anything bigger is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends a payload to a topic at the client's configured QoS.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, c.qos, false)
}

// PublishRetained sends a payload the broker keeps for new subscribers.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, c.qos, true)
}

// PublishString is a convenience wrapper for text payloads.
func (c *Client) PublishString(topic, payload string) error {
	return c.Publish(topic, []byte(payload))
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout on %s", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// validateTopic rejects empty topics and topics containing wildcards,
// which are only valid in subscription filters.
func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic: %s", ErrInvalidTopic, topic)
	}
	return nil
}
