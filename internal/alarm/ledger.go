package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Ledger.
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

// Ledger is the authoritative alarm history.
//
// Record follows the inbound hot-path policy: the in-memory entry commits
// first and a failed persistence write is reported but not rolled back.
// Acknowledge operations are user-driven and write through the repository
// before touching the cache.
//
// All public methods are thread-safe.
type Ledger struct {
	repo    Repository
	cache   map[string]*Alarm
	cacheMu sync.RWMutex
	logger  Logger
}

// NewLedger creates a new alarm ledger.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{
		repo:   repo,
		cache:  make(map[string]*Alarm),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the ledger.
func (l *Ledger) SetLogger(logger Logger) {
	l.logger = logger
}

// Load reads all alarms from the repository into the cache.
func (l *Ledger) Load(ctx context.Context) error {
	alarms, err := l.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading alarms: %w", err)
	}

	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	l.cache = make(map[string]*Alarm, len(alarms))
	for i := range alarms {
		a := alarms[i]
		l.cache[a.ID] = a.Clone()
	}

	l.logger.Info("alarm ledger loaded", "count", len(alarms))
	return nil
}

// Record appends a new unacknowledged alarm and returns it.
//
// The entry commits in memory unconditionally; a failed repository write
// is returned for logging but the entry stays in the ledger.
func (l *Ledger) Record(ctx context.Context, deviceID, deviceName, message string) (*Alarm, error) {
	a := &Alarm{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}

	l.cacheMu.Lock()
	l.cache[a.ID] = a
	l.cacheMu.Unlock()

	if err := l.repo.Create(ctx, a); err != nil {
		return a.Clone(), fmt.Errorf("persisting alarm for %s: %w", deviceID, err)
	}

	l.logger.Info("alarm recorded", "alarm_id", a.ID, "device_id", deviceID)
	return a.Clone(), nil
}

// Get retrieves an alarm by ID.
// Returns ErrAlarmNotFound if the alarm does not exist.
func (l *Ledger) Get(id string) (*Alarm, error) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	if a, ok := l.cache[id]; ok {
		return a.Clone(), nil
	}
	return nil, ErrAlarmNotFound
}

// All returns every alarm, newest first.
func (l *Ledger) All() []Alarm {
	return l.filtered(func(*Alarm) bool { return true })
}

// Active returns unacknowledged alarms, newest first.
func (l *Ledger) Active() []Alarm {
	return l.filtered(func(a *Alarm) bool { return !a.Acknowledged })
}

// ActiveForDevice returns a device's unacknowledged alarms, newest first.
func (l *Ledger) ActiveForDevice(deviceID string) []Alarm {
	return l.filtered(func(a *Alarm) bool {
		return a.DeviceID == deviceID && !a.Acknowledged
	})
}

// Count returns the total number of alarms in the ledger.
func (l *Ledger) Count() int {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	return len(l.cache)
}

// ActiveCount returns the number of unacknowledged alarms.
func (l *Ledger) ActiveCount() int {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	count := 0
	for _, a := range l.cache {
		if !a.Acknowledged {
			count++
		}
	}
	return count
}

// HasActiveForDevice reports whether a device has unacknowledged alarms.
func (l *Ledger) HasActiveForDevice(deviceID string) bool {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	for _, a := range l.cache {
		if a.DeviceID == deviceID && !a.Acknowledged {
			return true
		}
	}
	return false
}

// Acknowledge marks one alarm as acknowledged. Acknowledging an already
// acknowledged alarm succeeds without effect.
//
// Returns the alarm's device ID so callers can reconcile device status.
func (l *Ledger) Acknowledge(ctx context.Context, id string) (deviceID string, err error) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	a, ok := l.cache[id]
	if !ok {
		return "", ErrAlarmNotFound
	}
	if a.Acknowledged {
		return a.DeviceID, nil
	}

	if err := l.repo.SetAcknowledged(ctx, id); err != nil && !errors.Is(err, ErrAlarmNotFound) {
		return "", err
	}
	a.Acknowledged = true

	l.logger.Info("alarm acknowledged", "alarm_id", id, "device_id", a.DeviceID)
	return a.DeviceID, nil
}

// AcknowledgeDevice marks every unacknowledged alarm for a device.
// Returns the number of alarms acknowledged; zero is not an error.
func (l *Ledger) AcknowledgeDevice(ctx context.Context, deviceID string) (int, error) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	pending := make([]*Alarm, 0)
	for _, a := range l.cache {
		if a.DeviceID == deviceID && !a.Acknowledged {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if _, err := l.repo.AcknowledgeByDevice(ctx, deviceID); err != nil {
		return 0, err
	}
	for _, a := range pending {
		a.Acknowledged = true
	}

	l.logger.Info("device alarms acknowledged", "device_id", deviceID, "count", len(pending))
	return len(pending), nil
}

// RemoveByDevice drops all alarms for a device from the ledger.
//
// The repository delete is best-effort: the devices table cascades alarm
// rows on device deletion, so this only matters when alarms are cleared
// for a device that still exists.
func (l *Ledger) RemoveByDevice(ctx context.Context, deviceID string) error {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	removed := 0
	for id, a := range l.cache {
		if a.DeviceID == deviceID {
			delete(l.cache, id)
			removed++
		}
	}

	if err := l.repo.DeleteByDevice(ctx, deviceID); err != nil {
		return err
	}

	if removed > 0 {
		l.logger.Info("device alarms removed", "device_id", deviceID, "count", removed)
	}
	return nil
}

// filtered returns matching alarms sorted newest first, ties broken by ID
// for a stable order.
func (l *Ledger) filtered(keep func(*Alarm) bool) []Alarm {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	alarms := make([]Alarm, 0, len(l.cache))
	for _, a := range l.cache {
		if keep(a) {
			alarms = append(alarms, *a.Clone())
		}
	}

	sort.Slice(alarms, func(i, j int) bool {
		if !alarms[i].CreatedAt.Equal(alarms[j].CreatedAt) {
			return alarms[i].CreatedAt.After(alarms[j].CreatedAt)
		}
		return alarms[i].ID > alarms[j].ID
	})
	return alarms
}
