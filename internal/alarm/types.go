package alarm

import "time"

// Alarm is one recorded alarm event.
//
// DeviceName is denormalised at creation time so the entry stays readable
// after the device is renamed or removed.
type Alarm struct {
	// ID is a generated UUID, unique across the ledger's lifetime.
	ID string `json:"id"`

	// DeviceID references the device that raised the alarm.
	DeviceID string `json:"device_id"`

	// DeviceName is the device's display name at the time of the event.
	DeviceName string `json:"device_name"`

	// Message is the human-readable alarm text.
	Message string `json:"message"`

	CreatedAt time.Time `json:"created_at"`

	// Acknowledged marks the alarm as seen by an operator.
	Acknowledged bool `json:"acknowledged"`
}

// Clone returns an independent copy of the Alarm.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}
