package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/garirakho/gate-backend/internal/mqtt"
)

// telemetryTimeout bounds the database work for one MQTT reading.
const telemetryTimeout = 5 * time.Second

// Subscriber is the inbound side of the device-messaging endpoint.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// TelemetryListener feeds readings published on
// <prefix>/devices/<deviceKey>/telemetry into the device registry: the same
// path as POST /api/ingest, with the device key taken from the topic.
//
// The broker's ACLs authenticate this path; there is no API key.
type TelemetryListener struct {
	devices DeviceRegistry
	topics  mqtt.Topics
	logger  *slog.Logger
}

// NewTelemetryListener creates a TelemetryListener.
func NewTelemetryListener(devices DeviceRegistry, topics mqtt.Topics, logger *slog.Logger) *TelemetryListener {
	return &TelemetryListener{devices: devices, topics: topics, logger: logger}
}

// Register subscribes to every device's telemetry topic.
func (l *TelemetryListener) Register(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(l.topics.AllDeviceTelemetry(), qos, l.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	return nil
}

// HandleMessage ingests one telemetry message. Errors are returned to the
// mqtt client, which logs them.
func (l *TelemetryListener) HandleMessage(topic string, payload []byte) error {
	deviceKey, ok := l.topics.DeviceKeyFromTelemetry(topic)
	if !ok {
		return fmt.Errorf("unexpected telemetry topic %q", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
	defer cancel()

	if _, err := l.devices.Ingest(ctx, payload, deviceKey); err != nil {
		return fmt.Errorf("ingesting telemetry from %q: %w", deviceKey, err)
	}
	return nil
}
