package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
)

// eventBufferSize bounds the inbound message queue. A burst beyond this
// briefly blocks the transport's delivery goroutines rather than dropping
// messages.
const eventBufferSize = 256

// Session is the explicitly owned connection and reconciliation container.
//
// One Session exists per process. It owns the transport handle, the
// subscription set and the inbound event queue. Commands (Connect,
// Disconnect, device lifecycle, acknowledgments) are serialized by the
// session mutex; inbound messages are serialized by the single loop
// goroutine. The generation counter detects callbacks from a superseded
// transport so a late connect or disconnect signal from a torn-down
// session never corrupts current state.
type Session struct {
	registry *device.Registry
	ledger   *alarm.Ledger
	dial     Dialer
	subs     *subscriptionSet

	notifier Notifier
	history  HistoryWriter
	logger   Logger

	// mu guards transport, cfg and generation.
	mu         sync.Mutex
	transport  Transport
	cfg        config.BrokerConfig
	generation uint64

	events chan inboundMessage
	done   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSession creates a session over the given registry and ledger.
// The dialer opens broker connections; production wiring passes a thin
// adapter over mqtt.Connect.
func NewSession(registry *device.Registry, ledger *alarm.Ledger, cfg config.BrokerConfig, dial Dialer) *Session {
	logger := Logger(noopLogger{})
	return &Session{
		registry: registry,
		ledger:   ledger,
		dial:     dial,
		cfg:      cfg,
		subs:     newSubscriptionSet(byte(cfg.QoS), logger),
		logger:   logger,
		events:   make(chan inboundMessage, eventBufferSize),
		done:     make(chan struct{}),
	}
}

// SetNotifier sets the alarm notification sink.
func (s *Session) SetNotifier(n Notifier) { s.notifier = n }

// SetHistoryWriter sets the time-series history sink.
func (s *Session) SetHistoryWriter(h HistoryWriter) { s.history = h }

// SetLogger sets the logger for the session and its subscription set.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
	s.subs.logger = logger
}

// Start launches the reconciliation loop goroutine.
// It must be called before Connect. Safe to call once; repeat calls are
// no-ops.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop(ctx)
	})
}

// Stop disconnects and shuts the reconciliation loop down.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.Disconnect()
		close(s.done)
		s.wg.Wait()
	})
}

// loop consumes inbound messages one at a time. This is the single writer
// for reconciliation: per-device ordering is event-arrival ordering.
func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg := <-s.events:
			s.reconcile(ctx, msg)
		}
	}
}

// Connect opens a broker session using the current configuration.
//
// A live transport is torn down first; two sessions never overlap. The
// subscription set is rebuilt from scratch against the registry's current
// device set, which is why the registry must be loaded from persistence
// before the first Connect.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.teardownLocked()
	s.generation++
	gen := s.generation

	transport, err := s.dial(s.cfg)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}

	transport.SetOnConnect(func() { s.handleTransportConnect(gen) })
	transport.SetOnDisconnect(func(err error) { s.handleTransportDisconnect(gen, err) })
	s.transport = transport

	s.subs.markAllUnsubscribed()
	s.subs.subscribeAll(transport, s.registry.IDs(), s.handleMessage)

	s.logger.Info("broker session established",
		"host", s.cfg.Host, "port", s.cfg.Port, "devices", s.registry.Count())
	return nil
}

// Disconnect tears the broker session down. Safe when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// teardownLocked closes the current transport and bumps the generation so
// its late callbacks are discarded. Caller holds s.mu.
func (s *Session) teardownLocked() {
	if s.transport == nil {
		return
	}

	s.generation++
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("transport close failed", "error", err)
	}
	s.transport = nil
	s.subs.markAllUnsubscribed()
}

// IsConnected reports whether a live broker session exists.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil && s.transport.IsConnected()
}

// BrokerConfig returns a copy of the current broker configuration.
func (s *Session) BrokerConfig() config.BrokerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateBrokerConfig swaps the broker configuration. When a session is
// live it reconnects with the new parameters; otherwise the change takes
// effect on the next Connect. Persisting the configuration is the
// caller's concern.
func (s *Session) UpdateBrokerConfig(ctx context.Context, cfg config.BrokerConfig) error {
	s.mu.Lock()
	wasConnected := s.transport != nil
	s.cfg = cfg
	s.subs.setQoS(byte(cfg.QoS))
	s.teardownLocked()
	s.mu.Unlock()

	if !wasConnected {
		return nil
	}
	return s.Connect(ctx)
}

// handleTransportConnect runs on the transport's goroutine whenever a
// connection is established or re-established. A stale generation means
// the callback belongs to a superseded session and is discarded.
func (s *Session) handleTransportConnect(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.transport == nil {
		s.logger.Debug("stale connect callback discarded", "generation", gen)
		return
	}

	// Rebuild from the current device set. Subscribing an already
	// subscribed topic replaces it at the broker, so counts never grow.
	s.subs.markAllUnsubscribed()
	s.subs.subscribeAll(s.transport, s.registry.IDs(), s.handleMessage)
	s.logger.Info("broker connection restored", "subscriptions", s.subs.activeCount())
}

// handleTransportDisconnect runs on the transport's goroutine when the
// connection drops. Subscriptions are cleared locally only; the broker
// already dropped them.
func (s *Session) handleTransportDisconnect(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug("stale disconnect callback discarded", "generation", gen)
		return
	}

	s.subs.markAllUnsubscribed()
	s.logger.Warn("broker connection lost", "error", err)
}

// handleMessage is the transport callback for every subscribed topic.
// It parses the topic and queues the message for the loop goroutine.
// Unroutable topics are dropped.
func (s *Session) handleMessage(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseDeviceTopic(topic)
	if !ok {
		s.logger.Debug("unroutable message dropped", "topic", topic)
		return nil
	}

	msg := inboundMessage{deviceID: deviceID, kind: kind, payload: string(payload)}
	select {
	case s.events <- msg:
	case <-s.done:
	}
	return nil
}

// reconcile applies one message against the registry and ledger.
//
// Messages for unknown devices are dropped without error: arrival races
// device removal and a stale retained message is expected, not a fault.
// The status and last-update always refresh on an accepted message; a
// ledger entry is appended only on the edge into alarm, and the
// notification fires only after state has committed.
func (s *Session) reconcile(ctx context.Context, msg inboundMessage) {
	target, message := interpret(msg.kind, msg.payload)
	now := time.Now().UTC()

	previous, applied, err := s.registry.ApplyStatus(ctx, msg.deviceID, target, now)
	if !applied {
		s.logger.Debug("message for unknown device dropped", "device_id", msg.deviceID)
		return
	}
	if err != nil {
		s.logger.Warn("status persistence failed", "device_id", msg.deviceID, "error", err)
	}

	if s.history != nil {
		s.history.WriteStatusChange(msg.deviceID, target, now)
	}

	if !raisesAlarm(previous, target) {
		return
	}

	deviceName, location := msg.deviceID, ""
	if d, getErr := s.registry.Get(msg.deviceID); getErr == nil {
		deviceName, location = d.Name, d.Location
	}

	entry, err := s.ledger.Record(ctx, msg.deviceID, deviceName, message)
	if err != nil {
		s.logger.Warn("alarm persistence failed", "device_id", msg.deviceID, "error", err)
	}
	if s.history != nil && entry != nil {
		s.history.WriteAlarmEvent(*entry)
	}

	if s.notifier != nil {
		go s.notifier.Notify(Notification{
			DeviceName: deviceName,
			Location:   location,
			Message:    message,
		})
	}

	s.logger.Info("alarm raised",
		"device_id", msg.deviceID, "device", deviceName, "message", message)
}

// AddDevice registers a new device and, when connected, subscribes its
// topics immediately.
func (s *Session) AddDevice(ctx context.Context, id, name, location string) (*device.Device, error) {
	d, err := s.registry.Add(ctx, id, name, location)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		if err := s.subs.subscribeDevice(transport, id, s.handleMessage); err != nil {
			s.logger.Warn("subscribing new device failed", "device_id", id, "error", err)
		}
	}
	return d, nil
}

// UpdateDevice merges a patch into an existing device.
func (s *Session) UpdateDevice(ctx context.Context, id string, patch device.UpdatePatch) (*device.Device, error) {
	return s.registry.Update(ctx, id, patch)
}

// RemoveDevice deletes a device, cascades its alarms out of the ledger and
// unsubscribes its topics regardless of connection state. Idempotent.
func (s *Session) RemoveDevice(ctx context.Context, id string) error {
	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}
	if err := s.ledger.RemoveByDevice(ctx, id); err != nil {
		s.logger.Warn("removing device alarms failed", "device_id", id, "error", err)
	}

	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	s.subs.unsubscribeDevice(transport, id)

	return nil
}

// AcknowledgeAlarm flips one ledger entry's acknowledged flag. This is the
// primary acknowledge entry point; it never changes device status, since a
// newer unacknowledged alarm may exist or the device may have recovered on
// its own.
func (s *Session) AcknowledgeAlarm(ctx context.Context, alarmID string) error {
	_, err := s.ledger.Acknowledge(ctx, alarmID)
	return err
}

// AcknowledgeDevice acknowledges every unacknowledged alarm for a device
// and, when the device currently reads alarm, demotes it to active.
// Returns the number of alarms acknowledged.
func (s *Session) AcknowledgeDevice(ctx context.Context, deviceID string) (int, error) {
	if _, err := s.registry.Get(deviceID); err != nil {
		return 0, err
	}

	count, err := s.ledger.AcknowledgeDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	d, err := s.registry.Get(deviceID)
	if err == nil && d.Status == device.StatusAlarm {
		if _, _, applyErr := s.registry.ApplyStatus(ctx, deviceID, device.StatusActive, time.Now().UTC()); applyErr != nil {
			s.logger.Warn("status demotion persistence failed", "device_id", deviceID, "error", applyErr)
		}
	}
	return count, nil
}

// TriggerTestAlarm synthesizes an alarm-topic message for the first device
// in ID order and runs it through the normal transition rules, so the
// edge-trigger guard applies to test alarms exactly as to real ones.
// Returns ErrNoDevices when the registry is empty.
func (s *Session) TriggerTestAlarm(ctx context.Context) (*device.Device, error) {
	d, err := s.registry.First()
	if err != nil {
		return nil, err
	}

	s.reconcile(ctx, inboundMessage{
		deviceID: d.ID,
		kind:     mqtt.KindAlarm,
		payload:  "Test alarm triggered",
	})
	return s.registry.Get(d.ID)
}

// ActiveSubscriptions returns the number of currently subscribed topics.
func (s *Session) ActiveSubscriptions() int {
	return s.subs.activeCount()
}
