// Package mqtt provides MQTT client connectivity for Fire Watch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Per-device topic subscriptions with restore on reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// # Topic scheme
//
// Sensor devices publish to two topics each:
//
//	devices/{deviceId}/status   periodic status value (active, warning, ...)
//	devices/{deviceId}/alarm    alarm trigger with a human-readable message
//
// The client itself announces presence on firewatch/status (retained).
//
// Device identifiers are substituted into topics literally with no escaping,
// so they must not contain '/', '#' or '+'. The device package enforces this
// at validation time.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Broker)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DeviceStatus("sensor-1"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
