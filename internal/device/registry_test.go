package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device

	// For testing error paths
	createErr       error
	updateErr       error
	deleteErr       error
	updateStatusErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.Clone())
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, device *Device) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.ID]; exists {
		return ErrDeviceExists
	}
	m.devices[device.ID] = device.Clone()
	return nil
}

func (m *MockRepository) Update(_ context.Context, device *Device) error {
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.ID]; !exists {
		return ErrDeviceNotFound
	}
	m.devices[device.ID] = device.Clone()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[id]; !exists {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) UpdateStatus(_ context.Context, id string, status Status, lastUpdate time.Time) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.devices[id]
	if !exists {
		return ErrDeviceNotFound
	}
	d.Status = status
	ts := lastUpdate
	d.LastUpdate = &ts
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	return NewRegistry(repo), repo
}

func TestAddDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	d, err := reg.Add(ctx, "sensor-1", "Kitchen", "Room A")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if d.Status != StatusInactive {
		t.Errorf("new device status = %q, want %q", d.Status, StatusInactive)
	}
	if d.LastUpdate != nil {
		t.Errorf("new device LastUpdate = %v, want nil", d.LastUpdate)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestAddDuplicateFails(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "d1", "First", ""); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}

	_, err := reg.Add(ctx, "d1", "Second", "")
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("second Add() error = %v, want ErrDeviceExists", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d after duplicate add, want 1", reg.Count())
	}
}

func TestAddValidatesInput(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		devName  string
		location string
		wantErr  error
	}{
		{"empty id", "", "Name", "", ErrInvalidID},
		{"slash in id", "a/b", "Name", "", ErrInvalidID},
		{"hash in id", "a#b", "Name", "", ErrInvalidID},
		{"plus in id", "a+b", "Name", "", ErrInvalidID},
		{"empty name", "sensor-1", "", "", ErrInvalidName},
		{"whitespace name", "sensor-1", "   ", "", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Add(ctx, tt.id, tt.devName, tt.location)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add(%q, %q) error = %v, want %v", tt.id, tt.devName, err, tt.wantErr)
			}
		})
	}

	if reg.Count() != 0 {
		t.Errorf("Count() = %d after rejected adds, want 0", reg.Count())
	}
}

func TestUpdateDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", "Room A"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	newName := "Kitchen Smoke"
	d, err := reg.Update(ctx, "sensor-1", UpdatePatch{Name: &newName})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if d.Name != "Kitchen Smoke" {
		t.Errorf("Name = %q, want %q", d.Name, "Kitchen Smoke")
	}
	if d.Location != "Room A" {
		t.Errorf("Location = %q, want untouched %q", d.Location, "Room A")
	}
	if d.Status != StatusInactive {
		t.Errorf("Status = %q, want untouched %q", d.Status, StatusInactive)
	}
}

func TestUpdateRejectsEmptyName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	empty := ""
	if _, err := reg.Update(ctx, "sensor-1", UpdatePatch{Name: &empty}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Update() error = %v, want ErrInvalidName", err)
	}

	// Original record must be untouched.
	d, err := reg.Get("sensor-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Name != "Kitchen" {
		t.Errorf("Name = %q after rejected update, want %q", d.Name, "Kitchen")
	}
}

func TestUpdateMissingDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)

	name := "Anything"
	_, err := reg.Update(context.Background(), "ghost", UpdatePatch{Name: &name})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := reg.Remove(ctx, "sensor-1"); err != nil {
		t.Errorf("first Remove() error = %v", err)
	}
	if err := reg.Remove(ctx, "sensor-1"); err != nil {
		t.Errorf("second Remove() error = %v, want nil (idempotent)", err)
	}
	if err := reg.Remove(ctx, "never-existed"); err != nil {
		t.Errorf("Remove() of unknown device error = %v, want nil", err)
	}
	if reg.Count() != 0 {
		t.Errorf("Count() = %d, want 0", reg.Count())
	}
}

func TestApplyStatus(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ts := time.Now().UTC()
	prev, applied, err := reg.ApplyStatus(ctx, "sensor-1", StatusAlarm, ts)
	if err != nil {
		t.Fatalf("ApplyStatus() error = %v", err)
	}
	if !applied {
		t.Fatal("ApplyStatus() applied = false, want true")
	}
	if prev != StatusInactive {
		t.Errorf("previous status = %q, want %q", prev, StatusInactive)
	}

	d, err := reg.Get("sensor-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Status != StatusAlarm {
		t.Errorf("Status = %q, want %q", d.Status, StatusAlarm)
	}
	if d.LastUpdate == nil || !d.LastUpdate.Equal(ts) {
		t.Errorf("LastUpdate = %v, want %v", d.LastUpdate, ts)
	}
}

func TestApplyStatusUnknownDeviceIsDropped(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, applied, err := reg.ApplyStatus(context.Background(), "ghost", StatusAlarm, time.Now())
	if err != nil {
		t.Errorf("ApplyStatus() error = %v, want nil for unknown device", err)
	}
	if applied {
		t.Error("ApplyStatus() applied = true for unknown device, want false")
	}
}

func TestApplyStatusKeepsCacheOnPersistFailure(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	repo.updateStatusErr = errors.New("disk full")

	_, applied, err := reg.ApplyStatus(ctx, "sensor-1", StatusAlarm, time.Now().UTC())
	if !applied {
		t.Fatal("ApplyStatus() applied = false, want true despite persist failure")
	}
	if err == nil {
		t.Error("ApplyStatus() error = nil, want persist error reported")
	}

	// In-memory transition must survive the failed write.
	d, _ := reg.Get("sensor-1")
	if d.Status != StatusAlarm {
		t.Errorf("Status = %q after persist failure, want %q", d.Status, StatusAlarm)
	}
}

func TestFirst(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.First(); !errors.Is(err, ErrNoDevices) {
		t.Errorf("First() on empty registry error = %v, want ErrNoDevices", err)
	}

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if _, err := reg.Add(ctx, id, "Device "+id, ""); err != nil {
			t.Fatalf("Add(%q) error = %v", id, err)
		}
	}

	d, err := reg.First()
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	if d.ID != "alpha" {
		t.Errorf("First().ID = %q, want %q", d.ID, "alpha")
	}
}

func TestListSortedByName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, d := range []struct{ id, name string }{
		{"s3", "Workshop"},
		{"s1", "Attic"},
		{"s2", "Kitchen"},
	} {
		if _, err := reg.Add(ctx, d.id, d.name, ""); err != nil {
			t.Fatalf("Add(%q) error = %v", d.id, err)
		}
	}

	devices := reg.List()
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}
	want := []string{"Attic", "Kitchen", "Workshop"}
	for i, name := range want {
		if devices[i].Name != name {
			t.Errorf("List()[%d].Name = %q, want %q", i, devices[i].Name, name)
		}
	}
}

func TestLoadPopulatesCache(t *testing.T) {
	repo := NewMockRepository()
	now := time.Now().UTC()
	repo.devices["persisted"] = &Device{
		ID:        "persisted",
		Name:      "Persisted Sensor",
		Status:    StatusActive,
		LastUpdate: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	reg := NewRegistry(repo)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d, err := reg.Get("persisted")
	if err != nil {
		t.Fatalf("Get() after Load() error = %v", err)
	}
	if d.Status != StatusActive {
		t.Errorf("Status = %q, want %q", d.Status, StatusActive)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, "sensor-1", "Kitchen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	d, _ := reg.Get("sensor-1")
	d.Name = "Mutated"

	fresh, _ := reg.Get("sensor-1")
	if fresh.Name != "Kitchen" {
		t.Errorf("cache mutated through returned copy: Name = %q", fresh.Name)
	}
}
