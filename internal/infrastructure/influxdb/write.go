package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/device"
)

// WriteStatusChange records one reconciled device status transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
// A disconnected client drops the point silently, since the history is a
// best-effort record and must never stall the reconciliation loop.
//
// Parameters:
//   - deviceID: The device whose status changed
//   - status: The status after the transition
//   - timestamp: When the transition was applied
func (c *Client) WriteStatusChange(deviceID string, status device.Status, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
			"status":    string(status),
		},
		map[string]interface{}{
			// InfluxDB needs a field; the alarm flag doubles as a
			// queryable severity marker.
			"in_alarm": status == device.StatusAlarm,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlarmEvent records one newly created alarm ledger entry.
//
// Parameters:
//   - a: The alarm as recorded in the ledger
func (c *Client) WriteAlarmEvent(a alarm.Alarm) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alarm_events",
		map[string]string{
			"device_id": a.DeviceID,
		},
		map[string]interface{}{
			"alarm_id":    a.ID,
			"device_name": a.DeviceName,
			"message":     a.Message,
		},
		a.CreatedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
