package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry is the authoritative device collection.
//
// It wraps a Repository and keeps a full in-memory cache so the inbound
// message path never blocks on the database. User operations (Add, Update,
// Remove) are write-through: the repository write must succeed before the
// cache changes. The reconciliation hot path (ApplyStatus) is the opposite:
// the in-memory transition commits first and a failed persistence write is
// reported but never rolls the transition back.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// UpdatePatch carries optional field changes for Update.
// Nil fields are left untouched.
type UpdatePatch struct {
	Name     *string
	Location *string
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load reads all devices from the repository into the cache.
// This must complete before the first broker connection so persisted devices
// get their topics subscribed.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.Clone()
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if d, ok := r.cache[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrDeviceNotFound
}

// List retrieves all devices sorted by name, then ID for a stable order.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.Clone())
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// IDs returns the current device identifier set, sorted.
// This is the read-only view the subscription manager works from.
func (r *Registry) IDs() []string {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	ids := make([]string, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// First returns the first device in ID order.
// Returns ErrNoDevices if the registry is empty.
func (r *Registry) First() (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) == 0 {
		return nil, ErrNoDevices
	}

	var first *Device
	for _, d := range r.cache {
		if first == nil || d.ID < first.ID {
			first = d
		}
	}
	return first.Clone(), nil
}

// Add creates a new device with status inactive and no last-update timestamp.
//
// Returns ErrInvalidID/ErrInvalidName/ErrInvalidLocation on bad input and
// ErrDeviceExists if the ID is already registered.
func (r *Registry) Add(ctx context.Context, id, name, location string) (*Device, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateLocation(location); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, exists := r.cache[id]; exists {
		return nil, ErrDeviceExists
	}

	now := time.Now().UTC()
	d := &Device{
		ID:        id,
		Name:      name,
		Location:  location,
		Status:    StatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	r.cache[id] = d

	r.logger.Info("device added", "id", id, "name", name)
	return d.Clone(), nil
}

// Update merges the patch into an existing device.
// Status and last-update are never touched here; those belong to the
// reconciliation engine.
func (r *Registry) Update(ctx context.Context, id string, patch UpdatePatch) (*Device, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	current, ok := r.cache[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	updated := current.Clone()
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Location != nil {
		updated.Location = *patch.Location
	}

	if err := ValidateName(updated.Name); err != nil {
		return nil, err
	}
	if err := ValidateLocation(updated.Location); err != nil {
		return nil, err
	}

	updated.UpdatedAt = time.Now().UTC()

	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	r.cache[id] = updated

	r.logger.Info("device updated", "id", id, "name", updated.Name)
	return updated.Clone(), nil
}

// Remove deletes a device. Removing an absent device succeeds: the operation
// is idempotent so a double-tap in the UI or a replayed command is harmless.
//
// Alarm rows referencing the device cascade at the schema level; callers are
// expected to drop in-memory alarms and topic subscriptions themselves.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, exists := r.cache[id]; !exists {
		return nil
	}

	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return err
	}
	delete(r.cache, id)

	r.logger.Info("device removed", "id", id)
	return nil
}

// ApplyStatus records a reconciled status transition.
//
// The in-memory transition commits unconditionally; a failed repository
// write is returned for logging but does not roll the cache back (the
// registry favours availability on the inbound hot path).
//
// Returns the status before the transition and applied=false when the device
// is absent, which callers treat as "drop the message", not an error.
func (r *Registry) ApplyStatus(ctx context.Context, id string, status Status, timestamp time.Time) (previous Status, applied bool, err error) {
	r.cacheMu.Lock()

	d, ok := r.cache[id]
	if !ok {
		r.cacheMu.Unlock()
		return "", false, nil
	}

	previous = d.Status
	d.Status = status
	ts := timestamp
	d.LastUpdate = &ts
	d.UpdatedAt = timestamp
	r.cacheMu.Unlock()

	if repoErr := r.repo.UpdateStatus(ctx, id, status, timestamp); repoErr != nil &&
		!errors.Is(repoErr, ErrDeviceNotFound) {
		return previous, true, fmt.Errorf("persisting status for %s: %w", id, repoErr)
	}

	r.logger.Debug("device status applied", "id", id, "status", status)
	return previous, true, nil
}
