package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/logging"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/mqtt"
	"github.com/Kalashnok/fire-alarm/internal/monitor"
)

// fakeTransport satisfies monitor.Transport for handler tests.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) IsConnected() bool           { return true }
func (f *fakeTransport) SetOnConnect(func())         {}
func (f *fakeTransport) SetOnDisconnect(func(error)) {}
func (f *fakeTransport) Close() error                { return nil }

// memDeviceRepo is an in-memory device.Repository.
type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*device.Device)}
}

func (m *memDeviceRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.Clone(), nil
	}
	return nil, device.ErrDeviceNotFound
}

func (m *memDeviceRepo) List(_ context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.Clone())
	}
	return out, nil
}

func (m *memDeviceRepo) Create(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[d.ID]; exists {
		return device.ErrDeviceExists
	}
	m.devices[d.ID] = d.Clone()
	return nil
}

func (m *memDeviceRepo) Update(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[d.ID]; !exists {
		return device.ErrDeviceNotFound
	}
	m.devices[d.ID] = d.Clone()
	return nil
}

func (m *memDeviceRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[id]; !exists {
		return device.ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *memDeviceRepo) UpdateStatus(_ context.Context, id string, status device.Status, lastUpdate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, exists := m.devices[id]
	if !exists {
		return device.ErrDeviceNotFound
	}
	d.Status = status
	ts := lastUpdate
	d.LastUpdate = &ts
	return nil
}

// memAlarmRepo is an in-memory alarm.Repository.
type memAlarmRepo struct {
	mu     sync.Mutex
	alarms map[string]*alarm.Alarm
}

func newMemAlarmRepo() *memAlarmRepo {
	return &memAlarmRepo{alarms: make(map[string]*alarm.Alarm)}
}

func (m *memAlarmRepo) List(_ context.Context) ([]alarm.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]alarm.Alarm, 0, len(m.alarms))
	for _, a := range m.alarms {
		out = append(out, *a.Clone())
	}
	return out, nil
}

func (m *memAlarmRepo) Create(_ context.Context, a *alarm.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[a.ID] = a.Clone()
	return nil
}

func (m *memAlarmRepo) SetAcknowledged(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[id]
	if !ok {
		return alarm.ErrAlarmNotFound
	}
	a.Acknowledged = true
	return nil
}

func (m *memAlarmRepo) AcknowledgeByDevice(_ context.Context, deviceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alarms {
		if a.DeviceID == deviceID && !a.Acknowledged {
			a.Acknowledged = true
			n++
		}
	}
	return n, nil
}

func (m *memAlarmRepo) DeleteByDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.alarms {
		if a.DeviceID == deviceID {
			delete(m.alarms, id)
		}
	}
	return nil
}

// newTestServer wires a server over in-memory state and returns its router.
func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	registry := device.NewRegistry(newMemDeviceRepo())
	ledger := alarm.NewLedger(newMemAlarmRepo())
	dial := func(config.BrokerConfig) (monitor.Transport, error) {
		return newFakeTransport(), nil
	}
	session := monitor.NewSession(registry, ledger, config.BrokerConfig{
		Host: "localhost", Port: 1883, ClientID: "test", QoS: 1,
	}, dial)

	server, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   logging.Default(),
		Session:  session,
		Registry: registry,
		Ledger:   ledger,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server, server.buildRouter()
}

// doJSON performs a request with an optional JSON body.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
}

func TestCreateDevice(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen", Location: "Room A",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /devices status = %d, want 201, body %s", rec.Code, rec.Body)
	}

	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Status != device.StatusInactive {
		t.Errorf("created device status = %q, want inactive", d.Status)
	}

	// Duplicate ID conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Other",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST /devices status = %d, want 409", rec.Code)
	}
}

func TestCreateDeviceValidation(t *testing.T) {
	_, router := newTestServer(t)

	tests := []struct {
		name string
		req  createDeviceRequest
	}{
		{"empty id", createDeviceRequest{Name: "Kitchen"}},
		{"slash in id", createDeviceRequest{ID: "a/b", Name: "Kitchen"}},
		{"wildcard in id", createDeviceRequest{ID: "a#b", Name: "Kitchen"}},
		{"empty name", createDeviceRequest{ID: "sensor-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/devices", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/devices/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing device status = %d, want 404", rec.Code)
	}
}

func TestUpdateDevice(t *testing.T) {
	_, router := newTestServer(t)

	doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen", Location: "Room A",
	})

	name := "Kitchen Smoke"
	rec := doJSON(t, router, http.MethodPatch, "/api/v1/devices/sensor-1", updateDeviceRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Name != "Kitchen Smoke" || d.Location != "Room A" {
		t.Errorf("patched device = %+v, want renamed with location kept", d)
	}
}

func TestDeleteDeviceIsIdempotent(t *testing.T) {
	_, router := newTestServer(t)

	doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen",
	})

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/devices/sensor-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("first DELETE status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/devices/sensor-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("second DELETE status = %d, want 204 (idempotent)", rec.Code)
	}
}

func TestTestAlarmFlow(t *testing.T) {
	server, router := newTestServer(t)

	// No devices yet.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/alarms/test", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("POST /alarms/test without devices status = %d, want 409", rec.Code)
	}

	doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen", Location: "Room A",
	})

	rec = doJSON(t, router, http.MethodPost, "/api/v1/alarms/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /alarms/test status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Status != device.StatusAlarm {
		t.Errorf("device status after test alarm = %q, want alarm", d.Status)
	}

	// One active alarm listed.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/alarms?active=true", nil)
	var list struct {
		Alarms []alarm.Alarm `json:"alarms"`
		Count  int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("active alarms = %d, want 1", list.Count)
	}

	// Acknowledge it twice; both succeed.
	path := "/api/v1/alarms/" + list.Alarms[0].ID + "/acknowledge"
	for i := 0; i < 2; i++ {
		rec = doJSON(t, router, http.MethodPost, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("acknowledge call %d status = %d, want 200", i+1, rec.Code)
		}
	}
	if server.ledger.ActiveCount() != 0 {
		t.Errorf("active alarms after acknowledge = %d, want 0", server.ledger.ActiveCount())
	}
}

func TestAcknowledgeUnknownAlarm(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/alarms/no-such-id/acknowledge", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAcknowledgeDeviceEndpoint(t *testing.T) {
	_, router := newTestServer(t)

	doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen",
	})
	doJSON(t, router, http.MethodPost, "/api/v1/alarms/test", nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/devices/sensor-1/acknowledge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /devices/{id}/acknowledge status = %d, want 200", rec.Code)
	}

	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["acknowledged"] != 1 {
		t.Errorf("acknowledged = %d, want 1", body["acknowledged"])
	}

	// The device demotes back to active.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/devices/sensor-1", nil)
	var d device.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Status != device.StatusActive {
		t.Errorf("device status = %q after acknowledge, want active", d.Status)
	}
}

func TestConnectionEndpoints(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/connection", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /connection status = %d, want 200", rec.Code)
	}

	var conn map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &conn); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if conn["connected"] != false {
		t.Errorf("connected = %v before connect, want false", conn["connected"])
	}
	if _, leaked := conn["password"]; leaked {
		t.Error("password leaked in connection response")
	}

	// Invalid settings are rejected.
	rec = doJSON(t, router, http.MethodPut, "/api/v1/connection", updateConnectionRequest{
		Host: "", Port: 1883,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT /connection with empty host status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/v1/connection", updateConnectionRequest{
		Host: "broker.local", Port: 70000,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT /connection with bad port status = %d, want 400", rec.Code)
	}

	// Valid settings apply while disconnected.
	rec = doJSON(t, router, http.MethodPut, "/api/v1/connection", updateConnectionRequest{
		Host: "broker.local", Port: 8883, TLS: true, QoS: 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /connection status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	// Connect and check state reflects it.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/connection/connect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /connection/connect status = %d, want 200", rec.Code)
	}
	conn = map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &conn); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if conn["connected"] != true {
		t.Errorf("connected = %v after connect, want true", conn["connected"])
	}
	if conn["host"] != "broker.local" {
		t.Errorf("host = %v, want broker.local", conn["host"])
	}
}

func TestDeviceStats(t *testing.T) {
	_, router := newTestServer(t)

	doJSON(t, router, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "sensor-1", Name: "Kitchen",
	})
	doJSON(t, router, http.MethodPost, "/api/v1/alarms/test", nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/devices/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /devices/stats status = %d, want 200", rec.Code)
	}

	var stats struct {
		Total        int                   `json:"total"`
		ByStatus     map[device.Status]int `json:"by_status"`
		ActiveAlarms int                   `json:"active_alarms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus[device.StatusAlarm] != 1 || stats.ActiveAlarms != 1 {
		t.Errorf("stats = %+v, want 1 device in alarm with 1 active alarm", stats)
	}
}
