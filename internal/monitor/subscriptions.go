package monitor

import (
	"sync"

	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
)

// topicPair tracks the subscription state of one device's two topics.
type topicPair struct {
	status bool
	alarm  bool
}

// subscriptionSet keeps per-device topic subscriptions in sync with the
// device set and connection state. It holds only device identifiers, never
// device records.
type subscriptionSet struct {
	mu      sync.Mutex
	devices map[string]topicPair
	topics  mqtt.Topics
	qos     byte
	logger  Logger
}

func newSubscriptionSet(qos byte, logger Logger) *subscriptionSet {
	return &subscriptionSet{
		devices: make(map[string]topicPair),
		qos:     qos,
		logger:  logger,
	}
}

// subscribeDevice subscribes both topics for one device.
// Partial failure is recorded per topic so a retry on the next connect
// only replays what is missing.
func (s *subscriptionSet) subscribeDevice(t Transport, deviceID string, handler mqtt.MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := s.devices[deviceID]

	if !pair.status {
		if err := t.Subscribe(s.topics.DeviceStatus(deviceID), s.qos, handler); err != nil {
			s.devices[deviceID] = pair
			return err
		}
		pair.status = true
	}
	if !pair.alarm {
		if err := t.Subscribe(s.topics.DeviceAlarm(deviceID), s.qos, handler); err != nil {
			s.devices[deviceID] = pair
			return err
		}
		pair.alarm = true
	}

	s.devices[deviceID] = pair
	return nil
}

// subscribeAll subscribes both topics for every listed device.
// Used on connect; failures are logged and the rest of the set continues.
func (s *subscriptionSet) subscribeAll(t Transport, deviceIDs []string, handler mqtt.MessageHandler) {
	for _, id := range deviceIDs {
		if err := s.subscribeDevice(t, id, handler); err != nil {
			s.logger.Warn("topic subscription failed", "device_id", id, "error", err)
		}
	}
}

// unsubscribeDevice drops both topics for a device, best-effort.
// The local state clears regardless of transport errors so the device
// never gets resubscribed on reconnect.
func (s *subscriptionSet) unsubscribeDevice(t Transport, deviceID string) {
	s.mu.Lock()
	delete(s.devices, deviceID)
	s.mu.Unlock()

	if t == nil {
		return
	}
	for _, topic := range []string{
		s.topics.DeviceStatus(deviceID),
		s.topics.DeviceAlarm(deviceID),
	} {
		if err := t.Unsubscribe(topic); err != nil {
			s.logger.Debug("topic unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// markAllUnsubscribed clears local state without issuing unsubscribe calls.
// The broker drops subscriptions on disconnect; the next connect rebuilds
// from the registry's current device set.
func (s *subscriptionSet) markAllUnsubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[string]topicPair)
}

// setQoS changes the QoS used for future subscribe calls.
func (s *subscriptionSet) setQoS(qos byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qos = qos
}

// activeCount returns the number of currently subscribed topics.
func (s *subscriptionSet) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, pair := range s.devices {
		if pair.status {
			count++
		}
		if pair.alarm {
			count++
		}
	}
	return count
}

// isSubscribed reports whether both topics for a device are subscribed.
func (s *subscriptionSet) isSubscribed(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.devices[deviceID]
	return ok && pair.status && pair.alarm
}
