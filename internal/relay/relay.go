// Package relay forwards administrator commands to gate controllers over
// the device-messaging endpoint.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/xid"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/mqtt"
)

// Publisher is the outbound side of the device-messaging endpoint.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Command is the JSON object delivered to a device, verbatim.
type Command map[string]any

// OpenGate asks the device to open the entrance gate.
func OpenGate() Command {
	return Command{"openGate": true}
}

// ExitApproved grants or revokes permission to leave.
func ExitApproved(approved bool) Command {
	return Command{"exitApproved": approved}
}

// BookSlots sets the booked flag of the four parking slots.
func BookSlots(slot1, slot2, slot3, slot4 bool) Command {
	return Command{
		"slot1Booked": slot1,
		"slot2Booked": slot2,
		"slot3Booked": slot3,
		"slot4Booked": slot4,
	}
}

// Relay publishes commands to <prefix>/devices/<deviceKey>/commands.
//
// Relay performs NO authorization. Every caller must have passed
// auth.Gate.RequireAdmin first, and must call SendCommand after the unit
// of work that performed that check has completed.
//
// Delivery is at the configured QoS, not retained, and never retried:
// a failure is reported to the caller as apperror.ErrTransport.
type Relay struct {
	publisher Publisher
	topics    mqtt.Topics
	qos       byte
	logger    *slog.Logger
}

// New creates a Relay. publisher may be nil when no broker is configured;
// every SendCommand then fails with a transport error.
func New(publisher Publisher, topicPrefix string, qos byte, logger *slog.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		topics:    mqtt.Topics{Prefix: topicPrefix},
		qos:       qos,
		logger:    logger,
	}
}

// SendCommand delivers command to the device identified by deviceKey.
//
// An empty key, or one that cannot be a single topic level ('/', '+', '#'),
// is refused before the broker is contacted and reported as
// apperror.ErrValidation (400): it is bad caller input, and device ingest
// refuses the same keys, so no registered device has one. Only failures
// of the device-messaging endpoint itself are apperror.ErrTransport.
func (r *Relay) SendCommand(ctx context.Context, deviceKey string, command Command) error {
	if deviceKey == "" {
		return apperror.ValidationFailed("deviceId", "deviceId is required")
	}
	if !mqtt.ValidDeviceKey(deviceKey) {
		return apperror.ValidationFailed("deviceId", "deviceId must not contain '/', '+' or '#'")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("relay: encoding command for %q: %w", deviceKey, err)
	}

	traceID := xid.New().String()
	topic := r.topics.DeviceCommands(deviceKey)

	if r.publisher == nil {
		r.logger.Warn("command dropped, no device-messaging endpoint configured",
			slog.String("trace_id", traceID),
			slog.String("device_id", deviceKey),
		)
		return apperror.Transport("device messaging is not configured", nil)
	}

	if err := r.publisher.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.Error("command delivery failed",
			slog.String("trace_id", traceID),
			slog.String("device_id", deviceKey),
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		msg := "command delivery failed"
		if errors.Is(err, mqtt.ErrNotConnected) {
			msg = "device messaging is unavailable"
		}
		return apperror.Transport(msg, err)
	}

	r.logger.Info("command sent",
		slog.String("trace_id", traceID),
		slog.String("device_id", deviceKey),
		slog.String("topic", topic),
	)
	return nil
}
