package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when adding a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidID is returned when a device ID is empty, too long, or
	// contains characters unsafe for MQTT topic substitution.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidLocation is returned when a location exceeds the length limit.
	ErrInvalidLocation = errors.New("device: invalid location")

	// ErrNoDevices is returned when an operation needs at least one
	// registered device and the registry is empty.
	ErrNoDevices = errors.New("device: registry is empty")
)
