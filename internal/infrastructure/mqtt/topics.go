package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the Fire Watch scheme.
const (
	// TopicPrefixDevices is the base for all sensor device topics.
	TopicPrefixDevices = "devices"

	// TopicClientStatus is the retained presence topic for this client.
	TopicClientStatus = "firewatch/status"

	// suffixStatus and suffixAlarm are the per-device topic leaves.
	suffixStatus = "status"
	suffixAlarm  = "alarm"
)

// Kind identifies which of a device's two topics a message arrived on.
type Kind string

// Kind constants.
const (
	KindStatus Kind = "status"
	KindAlarm  Kind = "alarm"
)

// Topics provides builders for Fire Watch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("sensor-1")
//	// Returns: "devices/sensor-1/status"
type Topics struct{}

// DeviceStatus returns the status topic for a device.
//
// Example: devices/sensor-1/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, suffixStatus)
}

// DeviceAlarm returns the alarm topic for a device.
//
// Example: devices/sensor-1/alarm
func (Topics) DeviceAlarm(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, suffixAlarm)
}

// ClientStatus returns the retained presence topic for this client.
//
// Example: firewatch/status
func (Topics) ClientStatus() string {
	return TopicClientStatus
}

// ParseDeviceTopic splits a device topic into its device ID and kind.
//
// Returns ok=false for topics outside the devices/{id}/{status|alarm} scheme.
func ParseDeviceTopic(topic string) (deviceID string, kind Kind, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevices || parts[1] == "" {
		return "", "", false
	}

	switch parts[2] {
	case suffixStatus:
		return parts[1], KindStatus, true
	case suffixAlarm:
		return parts[1], KindAlarm, true
	default:
		return "", "", false
	}
}
