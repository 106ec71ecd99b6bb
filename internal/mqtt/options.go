package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/xid"

	"github.com/garirakho/gate-backend/internal/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is how long Connect waits for the first session.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for a publish or subscribe ack.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending work on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive         = 60 * time.Second
	defaultRetryInterval     = 2 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options from the broker config.
//
// The client id gets a random xid suffix so that two replicas sharing one
// configuration do not kick each other off the broker.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))

	opts.SetClientID(clientID(cfg.ClientID))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	// Keep retrying in the background, both for the first connection and
	// after a drop. Subscriptions are restored in the OnConnect handler.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(defaultRetryInterval)
	opts.SetMaxReconnectInterval(defaultMaxReconnectDelay)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

func clientID(base string) string {
	if base == "" {
		base = "garirakho"
	}
	return base + "-" + xid.New().String()
}
