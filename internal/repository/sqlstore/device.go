package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garirakho/gate-backend/internal/model"
	"github.com/garirakho/gate-backend/internal/repository"
)

// compile-time check that *DeviceRepo implements repository.DeviceRepository
var _ repository.DeviceRepository = (*DeviceRepo)(nil)

// DeviceRepo implements repository.DeviceRepository on one unit of work.
type DeviceRepo struct {
	q       DBTX
	dialect dialect
}

// Upsert writes the latest reading for a device.
//
// ON CONFLICT ... DO UPDATE keeps exactly one row per device_id, and both
// SQLite (3.24+) and PostgreSQL accept the same text. Every field is
// overwritten, so an absent value in the reading (coerced to 0 / false /
// empty) replaces what was stored before.
//
// Slots are stored as a JSON array in a TEXT column: the list length varies
// per device and is only ever read back whole.
func (r *DeviceRepo) Upsert(ctx context.Context, deviceID string, reading model.Telemetry, seenAt time.Time) (*model.Device, error) {
	slots := reading.Slots
	if slots == nil {
		slots = []bool{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encoding slots for device %q: %w", deviceID, err)
	}

	seenAt = seenAt.UTC()

	_, err = r.q.ExecContext(ctx, r.dialect.rebind(
		`INSERT INTO devices (device_id, entrance_cm, exit_approved, slots, last_msg_count, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET
		     entrance_cm    = excluded.entrance_cm,
		     exit_approved  = excluded.exit_approved,
		     slots          = excluded.slots,
		     last_msg_count = excluded.last_msg_count,
		     last_seen      = excluded.last_seen`),
		deviceID,
		reading.EntranceCm,
		reading.ExitApproved,
		string(slotsJSON),
		reading.MsgCount,
		seenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: upserting device %q: %w", deviceID, err)
	}

	return &model.Device{
		DeviceID:     deviceID,
		EntranceCm:   reading.EntranceCm,
		ExitApproved: reading.ExitApproved,
		Slots:        slots,
		LastMsgCount: reading.MsgCount,
		LastSeen:     seenAt,
	}, nil
}

// List returns every device, most recently seen first. Ties are broken by
// device_id so the order is stable.
//
// An empty table returns an empty (non-nil) slice so the JSON response is
// [] instead of null.
func (r *DeviceRepo) List(ctx context.Context) ([]model.Device, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT device_id, entrance_cm, exit_approved, slots, last_msg_count, last_seen
		 FROM devices
		 ORDER BY last_seen DESC, device_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing devices: %w", err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		var (
			d         model.Device
			slotsJSON string
		)
		if err := rows.Scan(
			&d.DeviceID,
			&d.EntranceCm,
			&d.ExitApproved,
			&slotsJSON,
			&d.LastMsgCount,
			&d.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning device row: %w", err)
		}
		if err := json.Unmarshal([]byte(slotsJSON), &d.Slots); err != nil {
			return nil, fmt.Errorf("sqlstore: decoding slots for device %q: %w", d.DeviceID, err)
		}
		if d.Slots == nil {
			d.Slots = []bool{}
		}
		d.LastSeen = d.LastSeen.UTC()
		devices = append(devices, d)
	}

	// rows.Err() returns any error encountered during iteration.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating device rows: %w", err)
	}

	return devices, nil
}
