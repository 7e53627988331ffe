// Package influxdb provides InfluxDB connectivity for Fire Watch.
//
// It wraps the official influxdb-client-go v2 library for recording the
// status-change and alarm-event history of monitored devices. The history
// is an optional, write-only concern: when InfluxDB is disabled or down,
// monitoring continues without it.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "firewatch",
//	    Bucket:  "history",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteStatusChange("sensor-1", device.StatusAlarm, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
