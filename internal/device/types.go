package device

import (
	"strings"
	"time"
)

// Status represents the reported state of a sensor device.
type Status string

// Status constants.
//
// Lifecycle: a device starts inactive, becomes active on its first status
// report, and moves between active and alarm as messages arrive. Warning and
// error are side states reachable from active.
const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
	StatusAlarm    Status = "alarm"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusInactive, StatusActive, StatusWarning, StatusError, StatusAlarm,
	}
}

// ParseStatus converts a raw payload value to a Status, case-insensitively.
// Returns false if the value is not one of the enumerated statuses.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, valid := range AllStatuses() {
		if s == valid {
			return s, true
		}
	}
	return "", false
}

// Device represents a monitored fire-alarm sensor.
type Device struct {
	// Identity. ID is immutable after creation and unique across the registry.
	ID   string `json:"id"`
	Name string `json:"name"`

	// Location is free text describing where the sensor is installed.
	Location string `json:"location"`

	// Status is the current reconciled state.
	Status Status `json:"status"`

	// LastUpdate is nil until the first message is received for this device.
	LastUpdate *time.Time `json:"last_update,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the Device.
// The registry hands out clones so callers cannot mutate the cache.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.LastUpdate != nil {
		ts := *d.LastUpdate
		cpy.LastUpdate = &ts
	}
	return &cpy
}
