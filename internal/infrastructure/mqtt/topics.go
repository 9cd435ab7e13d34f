package mqtt

import "fmt"

// TopicPrefixCore is the base for topics published by Core itself.
const TopicPrefixCore = "lumina"

// Topics provides builders for Lumina MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
//
// Device topics are room-prefixed because devices only know which room
// they are installed in; Core subscribes with a single-level wildcard in
// the room position.
type Topics struct{}

// DeviceRegister returns the topic a device announces itself on.
//
// Example: living-room/device-register
func (Topics) DeviceRegister(room string) string {
	return fmt.Sprintf("%s/device-register", room)
}

// SensorReading returns the topic sensor payloads arrive on.
//
// Example: living-room/sensor-device
func (Topics) SensorReading(room string) string {
	return fmt.Sprintf("%s/sensor-device", room)
}

// DeviceStatus returns the topic for a device's online/offline updates.
//
// Example: living-room/device-status/dev-a1b2c3
func (Topics) DeviceStatus(room, deviceID string) string {
	return fmt.Sprintf("%s/device-status/%s", room, deviceID)
}

// DeviceCommand returns the topic Core publishes commands to.
//
// Example: lumina/command/dev-a1b2c3
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixCore, deviceID)
}

// SystemStatus returns Core's own status topic, used for the LWT.
//
// Example: lumina/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefixCore)
}

// AllDeviceRegistrations returns a pattern matching registrations from
// any room.
//
// Pattern: +/device-register
func (Topics) AllDeviceRegistrations() string {
	return "+/device-register"
}

// AllSensorReadings returns a pattern matching sensor payloads from any
// room.
//
// Pattern: +/sensor-device
func (Topics) AllSensorReadings() string {
	return "+/sensor-device"
}

// AllDeviceStatuses returns a pattern matching status updates from any
// device in any room.
//
// Pattern: +/device-status/+
func (Topics) AllDeviceStatuses() string {
	return "+/device-status/+"
}
