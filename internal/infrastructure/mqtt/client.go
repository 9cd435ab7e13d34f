package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
)

// MessageHandler processes an inbound MQTT message. Returning an error
// logs the failure; the message is not redelivered.
type MessageHandler func(topic string, payload []byte) error

// Logger is the minimal logging interface the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client wraps the paho MQTT client with subscription tracking so
// handlers survive reconnects.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte

	mu            sync.RWMutex
	subscriptions map[string]MessageHandler

	callbackMu   sync.Mutex
	onConnect    func()
	onDisconnect func(error)

	logger Logger
}

// Connect establishes a connection to the MQTT broker and returns a
// ready client. LWT is registered before connecting so an unclean drop
// is visible to subscribers.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidQoS, cfg.QoS)
	}

	c := &Client{
		clientID:      cfg.Broker.ClientID,
		qos:           byte(cfg.QoS),
		subscriptions: make(map[string]MessageHandler),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleDisconnect)

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: connect timeout", ErrConnectionFailed)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return c, nil
}

// handleConnect runs on every (re)connection: restore subscriptions,
// announce presence, then invoke the user callback.
func (c *Client) handleConnect(_ pahomqtt.Client) {
	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.Lock()
	cb := c.onConnect
	c.callbackMu.Unlock()
	if cb != nil {
		cb()
	}
}

// handleDisconnect runs when the connection drops unexpectedly.
// Paho's auto-reconnect takes over; we just surface the event.
func (c *Client) handleDisconnect(_ pahomqtt.Client, err error) {
	if c.logger != nil {
		c.logger.Warn("mqtt connection lost", "error", err)
	}

	c.callbackMu.Lock()
	cb := c.onDisconnect
	c.callbackMu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// restoreSubscriptions re-subscribes all tracked topics after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, handler := range c.subscriptions {
		subs[topic] = handler
	}
	c.mu.RUnlock()

	for topic, handler := range subs {
		token := c.client.Subscribe(topic, c.qos, c.wrapHandler(handler))
		if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
			if c.logger != nil {
				c.logger.Error("mqtt resubscribe failed", "topic", topic, "error", token.Error())
			}
		}
	}
}

// publishOnlineStatus announces this client on the system status topic.
func (c *Client) publishOnlineStatus() {
	payload := buildOnlinePayload(c.clientID)
	token := c.client.Publish(Topics{}.SystemStatus(), 1, true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
		if c.logger != nil {
			c.logger.Warn("mqtt online status publish failed", "error", token.Error())
		}
	}
}

// wrapHandler adapts a MessageHandler to paho's callback signature,
// recovering panics so a bad handler cannot kill the paho router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if c.logger != nil {
					c.logger.Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if c.logger != nil {
				c.logger.Error("mqtt handler error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// Close publishes a graceful offline status then disconnects, waiting
// up to the quiesce period for in-flight messages.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.client.IsConnected() {
		payload := buildOfflinePayload(c.clientID)
		token := c.client.Publish(Topics{}.SystemStatus(), 1, true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// HealthCheck returns an error when the broker connection is down.
func (c *Client) HealthCheck() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetOnConnect registers a callback invoked after every successful
// (re)connection, after subscriptions have been restored.
func (c *Client) SetOnConnect(fn func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnect = fn
}

// SetOnDisconnect registers a callback invoked when the connection drops.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDisconnect = fn
}

// SetLogger attaches a logger for connection and handler diagnostics.
func (c *Client) SetLogger(l Logger) {
	c.logger = l
}
