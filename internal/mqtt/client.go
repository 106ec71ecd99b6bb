// Package mqtt is the device-messaging endpoint: a thin wrapper around
// eclipse/paho.mqtt.golang that publishes commands to gate controllers and
// delivers their telemetry to registered handlers.
//
// All methods are safe for concurrent use. Subscriptions are tracked and
// restored after every reconnect.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/garirakho/gate-backend/internal/config"
)

// Client wraps a paho client.
type Client struct {
	client pahomqtt.Client
	logger *slog.Logger

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is called for each received message, on a paho goroutine.
// A returned error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect creates a client and starts connecting to the broker.
//
// It waits up to defaultConnectTimeout for the first session. If the broker
// is unreachable in that window the client is returned anyway and paho keeps
// retrying in the background: the HTTP API must not depend on the broker
// being up at boot. Publish reports ErrNotConnected until a session exists.
// An explicit refusal from the broker (bad credentials) is returned as
// ErrConnectionFailed.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Client, error) {
	opts := buildClientOptions(cfg)

	c := &Client{
		logger:        logger.With(slog.String("component", "mqtt")),
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Info("reconnecting to broker")
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.logger.Warn("broker not reachable yet, retrying in background",
			slog.String("host", cfg.Host),
			slog.Int("port", cfg.Port),
		)
		return c, nil
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously; mark the state now so
	// IsConnected is true as soon as Connect returns.
	c.setConnected(true)

	c.logger.Info("connected to broker",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
	)
	return c, nil
}

// newClient wraps an existing paho client; used by tests.
func newClient(raw pahomqtt.Client, logger *slog.Logger) *Client {
	return &Client{
		client:        raw,
		logger:        logger,
		subscriptions: make(map[string]subscription),
	}
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.logger.Warn("broker connection lost", slog.Any("error", err))
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// restoreSubscriptions re-subscribes to all tracked topics after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
				c.logger.Error("restoring subscription failed",
					slog.String("topic", topic),
					slog.Any("error", token.Error()),
				)
			}
		}(sub.topic)
	}
}

// IsConnected reports whether a broker session is currently established.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close disconnects from the broker, giving in-flight work a short grace
// period.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one bad
// message cannot kill the paho router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("message handler panic recovered",
					slog.String("topic", msg.Topic()),
					slog.Any("panic", r),
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("message handler returned error",
				slog.String("topic", msg.Topic()),
				slog.String("error", err.Error()),
			)
		}
	}
}
