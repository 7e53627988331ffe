package monitor

import (
	"strings"

	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
)

// defaultAlarmMessage is used when an alarm-topic payload is empty.
const defaultAlarmMessage = "Alarm triggered"

// interpret maps an inbound (topic kind, payload) pair to a target status
// and the human-readable alarm message. Pure function, no state.
//
// Status-topic payloads are matched case-insensitively. Any payload
// containing the substring "alarm" targets the alarm status; otherwise the
// payload must name one of the enumerated statuses. Unrecognized values
// fail open to active: a live sensor speaking an unknown dialect is still
// a live sensor.
//
// Alarm-topic payloads target the alarm status unconditionally; the payload
// itself becomes the alarm message.
func interpret(kind mqtt.Kind, payload string) (device.Status, string) {
	trimmed := strings.TrimSpace(payload)

	if kind == mqtt.KindAlarm {
		msg := trimmed
		if msg == "" {
			msg = defaultAlarmMessage
		}
		return device.StatusAlarm, msg
	}

	if strings.Contains(strings.ToLower(trimmed), "alarm") {
		return device.StatusAlarm, trimmed
	}

	if status, ok := device.ParseStatus(trimmed); ok {
		return status, trimmed
	}
	return device.StatusActive, trimmed
}

// raisesAlarm reports whether a transition creates a new ledger entry.
// Entries are edge-triggered: only the move into alarm from any other
// status qualifies. A device already in alarm that reports alarm again
// refreshes its timestamp and nothing else.
func raisesAlarm(previous, target device.Status) bool {
	return target == device.StatusAlarm && previous != device.StatusAlarm
}
