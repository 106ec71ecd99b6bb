package model

import "time"

// Device is the latest known state of one gate controller.
//
// DeviceID is assigned by the device itself. There is exactly one row per
// DeviceID; every ingest overwrites all telemetry fields (no history).
type Device struct {
	DeviceID     string    `json:"deviceId"`
	EntranceCm   int64     `json:"entranceCm"`
	ExitApproved bool      `json:"exitApproved"`
	Slots        []bool    `json:"slots"`
	LastMsgCount int64     `json:"lastMsgCount"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Telemetry is one reading reported by a device. Absent fields arrive as
// their zero values: 0, false, empty slots, 0.
type Telemetry struct {
	EntranceCm   int64
	ExitApproved bool
	Slots        []bool
	MsgCount     int64
}
