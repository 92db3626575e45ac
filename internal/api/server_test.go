package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexy-voice/audiod/internal/api/models"
	"github.com/nexy-voice/audiod/internal/coordinator"
	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/nexy-voice/audiod/internal/platform/platformtest"
	"github.com/nexy-voice/audiod/internal/stream"
)

func newTestServer(t *testing.T, username, password string) (*Server, *platformtest.Fake, *coordinator.Coordinator) {
	t.Helper()

	fake := platformtest.NewFake()
	cache := device.NewStateCache()
	bus := events.New()

	deviceManager := device.NewManager(device.ManagerOptions{
		Platform: fake,
		Cache:    cache,
		EventBus: bus,
		Debounce: 20 * time.Millisecond,
	})
	deviceManager.Start(context.Background())
	t.Cleanup(deviceManager.Stop)

	policy := stream.Policy{
		MaxOpenAttempts:       2,
		RetryBackoffBase:      5 * time.Millisecond,
		RetryBackoffCap:       10 * time.Millisecond,
		SettleDelay:           5 * time.Millisecond,
		BluetoothSettleDelay:  10 * time.Millisecond,
		CacheFallbackAttempts: 1,
		CacheFallbackDelay:    5 * time.Millisecond,
		OpTimeout:             time.Second,
	}
	newStream := func(direction device.Direction) *stream.Manager {
		m := stream.NewManager(stream.ManagerOptions{
			Direction: direction,
			Platform:  fake,
			Cache:     cache,
			EventBus:  bus,
			Policy:    &policy,
		})
		m.Start(context.Background())
		t.Cleanup(m.Stop)
		return m
	}

	coord := coordinator.New(coordinator.Options{
		DeviceManager: deviceManager,
		Input:         newStream(device.DirectionInput),
		Output:        newStream(device.DirectionOutput),
		EventBus:      bus,
	})
	coord.Start()
	t.Cleanup(coord.Stop)

	server := NewServer(&Options{
		AuthUsername: username,
		AuthPassword: password,
		EventBus:     bus,
		Coordinator:  coord,
		Cache:        cache,
		Platform:     fake,
	})
	return server, fake, coord
}

func doRequest(t *testing.T, server *Server, method, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	rec := httptest.NewRecorder()
	server.GetMux().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuthRequired(t *testing.T) {
	server, _, _ := newTestServer(t, "admin", "secret")

	rec := doRequest(t, server, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var data models.HealthData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Status != "ok" {
		t.Errorf("status field = %q", data.Status)
	}
}

func TestDevicesRequireAuth(t *testing.T) {
	server, _, _ := newTestServer(t, "admin", "secret")

	if rec := doRequest(t, server, http.MethodGet, "/api/devices", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, server, http.MethodGet, "/api/devices", "admin:wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, server, http.MethodGet, "/api/devices", "admin:secret"); rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	server, fake, _ := newTestServer(t, "", "")
	fake.SetDevices(platform.DeviceTypeCapture,
		platform.RawDevice{ID: "builtin-in", Name: "Built-in Microphone", IsDefault: true, SampleRate: 48000},
		platform.RawDevice{ID: "airpods-1", Name: "AirPods Pro"},
	)
	fake.SetDevices(platform.DeviceTypePlayback,
		platform.RawDevice{ID: "builtin-out", Name: "Built-in Output", IsDefault: true},
	)

	rec := doRequest(t, server, http.MethodGet, "/api/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var data models.DeviceListData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Devices) != 3 {
		t.Fatalf("devices = %+v", data.Devices)
	}

	byUID := map[string]models.DeviceInfo{}
	for _, d := range data.Devices {
		byUID[d.UID] = d
	}
	if !byUID["builtin-in"].Default || byUID["builtin-in"].Direction != "input" {
		t.Errorf("builtin-in = %+v", byUID["builtin-in"])
	}
	if !byUID["airpods-1"].Bluetooth {
		t.Errorf("airpods-1 should classify as Bluetooth: %+v", byUID["airpods-1"])
	}
}

func TestStreamStatusReflectsSession(t *testing.T) {
	server, _, coord := newTestServer(t, "", "")

	session, err := coord.BeginRecording(context.Background())
	if err != nil {
		t.Fatalf("begin recording: %v", err)
	}
	defer coord.EndRecording(context.Background(), session)

	rec := doRequest(t, server, http.MethodGet, "/api/streams", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var data models.StreamStatusData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}

	byDirection := map[string]models.StreamStatus{}
	for _, s := range data.Streams {
		byDirection[s.Direction] = s
	}
	if got := byDirection["input"]; got.State != "active" || got.SessionID != session {
		t.Errorf("input status = %+v", got)
	}
	if got := byDirection["output"]; got.State != "idle" || got.SessionID != "" {
		t.Errorf("output status = %+v", got)
	}
}

func TestDefaultDevicesFromCache(t *testing.T) {
	server, _, _ := newTestServer(t, "", "")

	rec := doRequest(t, server, http.MethodGet, "/api/devices/defaults", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data models.DefaultDevicesData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Input != nil || data.Output != nil {
		t.Errorf("empty cache should yield no defaults: %+v", data)
	}
}
