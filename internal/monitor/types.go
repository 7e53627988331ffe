package monitor

import (
	"time"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
)

// Transport is the broker capability consumed by the session.
// *mqtt.Client satisfies it; tests substitute a mock.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Close() error
}

// Dialer opens a broker connection from configuration.
// Production wiring uses mqtt.Connect behind this.
type Dialer func(cfg config.BrokerConfig) (Transport, error)

// Notification carries the display payload for a newly created alarm.
type Notification struct {
	DeviceName string `json:"device_name"`
	Location   string `json:"location"`
	Message    string `json:"message"`
}

// Notifier receives alarm notifications.
//
// Notify is fire-and-forget: it is invoked after state has committed and
// must not block the reconciliation loop for long.
type Notifier interface {
	Notify(n Notification)
}

// HistoryWriter records status and alarm events to a time-series store.
// A nil writer disables history.
type HistoryWriter interface {
	WriteStatusChange(deviceID string, status device.Status, timestamp time.Time)
	WriteAlarmEvent(a alarm.Alarm)
}

// Logger defines the logging interface used by the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// inboundMessage is one raw broker delivery queued for the loop goroutine.
type inboundMessage struct {
	deviceID string
	kind     mqtt.Kind
	payload  string
}
