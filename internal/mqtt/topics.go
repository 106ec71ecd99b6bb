package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the device topic hierarchy under a configurable prefix:
//
//	<prefix>/devices/<deviceKey>/commands    server -> device
//	<prefix>/devices/<deviceKey>/telemetry   device -> server
type Topics struct {
	Prefix string
}

// DeviceCommands returns the topic a device listens on for commands.
//
// Example: garirakho/devices/gate-01/commands
func (t Topics) DeviceCommands(deviceKey string) string {
	return fmt.Sprintf("%s/devices/%s/commands", t.Prefix, deviceKey)
}

// DeviceTelemetry returns the topic a device publishes readings to.
func (t Topics) DeviceTelemetry(deviceKey string) string {
	return fmt.Sprintf("%s/devices/%s/telemetry", t.Prefix, deviceKey)
}

// AllDeviceTelemetry is the subscription pattern matching every device.
func (t Topics) AllDeviceTelemetry() string {
	return t.DeviceTelemetry("+")
}

// DeviceKeyFromTelemetry extracts the device key from a concrete telemetry
// topic. ok is false if the topic is not a telemetry topic under Prefix.
func (t Topics) DeviceKeyFromTelemetry(topic string) (deviceKey string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/devices/")
	if !found {
		return "", false
	}
	key, found := strings.CutSuffix(rest, "/telemetry")
	if !found || !ValidDeviceKey(key) {
		return "", false
	}
	return key, true
}

// ValidDeviceKey reports whether key can be used as a single topic level:
// non-empty, no level separator, no wildcards, no NUL.
func ValidDeviceKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, "/+#\x00")
}
