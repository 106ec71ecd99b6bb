package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/model"
	"github.com/garirakho/gate-backend/internal/mqtt"
	"github.com/garirakho/gate-backend/internal/repository"
)

// DeviceService is the device registry: it records the latest reading per
// device and lists them.
type DeviceService struct {
	store  repository.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewDeviceService creates a DeviceService. now is the clock used to stamp
// last-seen; pass nil for time.Now.
func NewDeviceService(store repository.Store, now func() time.Time, logger *slog.Logger) *DeviceService {
	if now == nil {
		now = time.Now
	}
	return &DeviceService{store: store, now: now, logger: logger}
}

// Ingest records one reading. payload is the device's JSON body (see
// DecodeTelemetry).
//
// deviceIDOverride, when non-empty, names the device instead of the
// payload's deviceId. The MQTT listener passes the key from the topic, which
// the broker has authenticated; HTTP ingest passes "".
//
// The whole row is replaced and last-seen stamped with the current UTC time
// in a single statement: concurrent readers see the old reading or the new
// one, never a mix.
func (s *DeviceService) Ingest(ctx context.Context, payload []byte, deviceIDOverride string) (*model.Device, error) {
	deviceID, reading, err := DecodeTelemetry(payload)
	if err != nil {
		return nil, err
	}
	if deviceIDOverride != "" {
		deviceID = deviceIDOverride
	}
	if deviceID == "" {
		return nil, apperror.ValidationFailed("deviceId", "deviceId missing")
	}
	// The id becomes a topic level on the command path; a key the relay
	// would refuse must not be registered either.
	if !mqtt.ValidDeviceKey(deviceID) {
		return nil, apperror.ValidationFailed("deviceId", "deviceId must not contain '/', '+' or '#'")
	}

	seenAt := s.now().UTC()

	var device *model.Device
	err = s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		d, err := tx.Devices().Upsert(ctx, deviceID, reading, seenAt)
		device = d
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/device: ingesting %q: %w", deviceID, err)
	}

	s.logger.Debug("telemetry ingested",
		slog.String("device_id", deviceID),
		slog.Int64("msg_count", reading.MsgCount),
	)

	return device, nil
}

// List returns every device, most recently seen first, read fresh from the
// store.
func (s *DeviceService) List(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		d, err := tx.Devices().List(ctx)
		devices = d
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/device: listing devices: %w", err)
	}
	return devices, nil
}
