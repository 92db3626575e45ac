package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/nexy-voice/audiod/internal/platform/platformtest"
)

// testPolicy compresses the timing constants so a full retry budget or a
// Bluetooth settle finishes in milliseconds.
func testPolicy() Policy {
	return Policy{
		MaxOpenAttempts:       3,
		RetryBackoffBase:      5 * time.Millisecond,
		RetryBackoffCap:       20 * time.Millisecond,
		SettleDelay:           20 * time.Millisecond,
		BluetoothSettleDelay:  120 * time.Millisecond,
		CacheFallbackAttempts: 2,
		CacheFallbackDelay:    5 * time.Millisecond,
		OpTimeout:             2 * time.Second,
	}
}

func newTestStream(t *testing.T, fake *platformtest.Fake, direction device.Direction, policy Policy) (*Manager, *device.StateCache, *events.Bus) {
	t.Helper()

	cache := device.NewStateCache()
	bus := events.New()
	manager := NewManager(ManagerOptions{
		Direction: direction,
		Platform:  fake,
		Cache:     cache,
		EventBus:  bus,
		Policy:    &policy,
	})
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	return manager, cache, bus
}

func wiredMic(uid string) *device.Descriptor {
	return &device.Descriptor{
		UID:           uid,
		Name:          "USB Mic",
		Direction:     device.DirectionInput,
		SampleRate:    48000,
		BlockSizeHint: 512,
	}
}

func bluetoothMic(uid string) *device.Descriptor {
	d := wiredMic(uid)
	d.Name = "AirPods Pro"
	d.IsBluetooth = true
	return d
}

func TestOpenFromIdle(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	if !manager.IsActive() {
		t.Errorf("state = %s, want active", manager.State())
	}
	if got, ok := manager.CurrentDevice(); !ok || got.UID != "mic-1" {
		t.Errorf("bound device = %+v ok=%v", got, ok)
	}
	if manager.Session() != "sess-1" {
		t.Errorf("session = %q", manager.Session())
	}

	calls := fake.OpenCalls()
	if len(calls) != 1 || calls[0].DeviceID != "mic-1" {
		t.Errorf("open calls = %+v", calls)
	}
}

func TestOpenRejectedWhileActive(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := manager.Open(context.Background(), "sess-2", wiredMic("mic-2"))
	if KindOf(err) != KindInvalidState {
		t.Errorf("second open error = %v, want invalid_state", err)
	}
	if manager.Session() != "sess-1" {
		t.Errorf("session clobbered: %q", manager.Session())
	}
}

func TestRetryBudgetExhaustedExactly(t *testing.T) {
	fake := platformtest.NewFake()
	policy := testPolicy()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, policy)

	// Every attempt fails with the transient busy error.
	for i := 0; i < policy.MaxOpenAttempts+2; i++ {
		fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy)
	}

	err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1"))
	if KindOf(err) != KindDeviceBusy {
		t.Fatalf("error = %v, want device_busy", err)
	}

	// The budget bounds the attempts exactly, no off-by-one.
	if got := len(fake.OpenCalls()); got != policy.MaxOpenAttempts {
		t.Errorf("open attempts = %d, want %d", got, policy.MaxOpenAttempts)
	}
	if manager.State() != StateIdle {
		t.Errorf("state after terminal failure = %s, want idle", manager.State())
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy, platform.ErrInvalidConfig)

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := len(fake.OpenCalls()); got != 3 {
		t.Errorf("open attempts = %d, want 3", got)
	}
	if !manager.IsActive() {
		t.Errorf("state = %s", manager.State())
	}
}

func TestNonTransientErrorFailsFast(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	fake.ScriptOpenErrors(platform.DeviceTypeCapture, errors.New("coreaudio HAL fault"))

	err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1"))
	if KindOf(err) != KindPlatform {
		t.Fatalf("error = %v, want platform kind", err)
	}
	if got := len(fake.OpenCalls()); got != 1 {
		t.Errorf("open attempts = %d, want 1 (no retry on unknown errors)", got)
	}
}

func TestSwitchHoldsSingleHandle(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionOutput, testPolicy())

	speaker := &device.Descriptor{UID: "spk-1", Name: "Built-in Output", Direction: device.DirectionOutput}
	headphones := &device.Descriptor{UID: "hp-1", Name: "USB Headphones", Direction: device.DirectionOutput}

	if err := manager.Open(context.Background(), "sess-1", speaker); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := manager.SwitchDevice(context.Background(), *headphones); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if max := fake.MaxConcurrentOpen(platform.DeviceTypePlayback); max != 1 {
		t.Errorf("max concurrent open = %d, want 1", max)
	}
	if n := fake.OpenCount(platform.DeviceTypePlayback); n != 0 {
		t.Errorf("leaked streams: %d still open", n)
	}
}

func TestSwitchSettleDelays(t *testing.T) {
	policy := testPolicy()

	gapFor := func(t *testing.T, target device.Descriptor) time.Duration {
		t.Helper()
		fake := platformtest.NewFake()
		manager, _, _ := newTestStream(t, fake, device.DirectionInput, policy)

		if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := manager.SwitchDevice(context.Background(), target); err != nil {
			t.Fatalf("switch: %v", err)
		}

		closes := fake.CloseTimes()
		calls := fake.OpenCalls()
		if len(closes) != 1 || len(calls) != 2 {
			t.Fatalf("closes=%d opens=%d", len(closes), len(calls))
		}
		return calls[1].At.Sub(closes[0])
	}

	if gap := gapFor(t, *wiredMic("mic-2")); gap < policy.SettleDelay {
		t.Errorf("wired settle gap = %v, want >= %v", gap, policy.SettleDelay)
	}
	if gap := gapFor(t, *bluetoothMic("airpods-1")); gap < policy.BluetoothSettleDelay {
		t.Errorf("bluetooth settle gap = %v, want >= %v", gap, policy.BluetoothSettleDelay)
	}
}

func TestSwitchRejectedFromIdle(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	err := manager.SwitchDevice(context.Background(), *wiredMic("mic-1"))
	if KindOf(err) != KindInvalidState {
		t.Errorf("error = %v, want invalid_state", err)
	}
}

func TestSwitchFallsBackToSystemDefault(t *testing.T) {
	fake := platformtest.NewFake()
	policy := testPolicy()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, policy)

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	// The switch target burns the whole retry budget; the fallback open
	// (script exhausted) succeeds with system-default addressing.
	for i := 0; i < policy.MaxOpenAttempts; i++ {
		fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy)
	}

	if err := manager.SwitchDevice(context.Background(), *wiredMic("mic-2")); err != nil {
		t.Fatalf("switch should recover via system default: %v", err)
	}

	calls := fake.OpenCalls()
	last := calls[len(calls)-1]
	if last.DeviceID != "" {
		t.Errorf("last open addressed %q, want system default", last.DeviceID)
	}
	if !manager.IsActive() {
		t.Errorf("state = %s", manager.State())
	}
}

func TestTerminalSwitchFailureClearsSession(t *testing.T) {
	fake := platformtest.NewFake()
	policy := testPolicy()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, policy)

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Both the switch target and the system-default fallback exhaust
	// their budgets: the stream ends idle and the session with it.
	for i := 0; i < 2*policy.MaxOpenAttempts; i++ {
		fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy)
	}

	if err := manager.SwitchDevice(context.Background(), *wiredMic("mic-2")); err == nil {
		t.Fatal("switch should fail terminally")
	}
	if manager.State() != StateIdle {
		t.Errorf("state = %s, want idle", manager.State())
	}
	if manager.Session() != "" {
		t.Errorf("session not cleared after terminal switch failure: %q", manager.Session())
	}
}

func TestBluetoothMissingHandleUsesDefaultAddressing(t *testing.T) {
	// A freshly reconnected Bluetooth device can be the default without
	// having a concrete handle yet. The open drops to system-default
	// addressing instead of failing with no_device.
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrNoDevice)

	if err := manager.Open(context.Background(), "sess-1", bluetoothMic("airpods-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	calls := fake.OpenCalls()
	if len(calls) != 2 || calls[0].DeviceID != "airpods-1" || calls[1].DeviceID != "" {
		t.Errorf("open calls = %+v", calls)
	}
}

func TestOpenResolvesFromCache(t *testing.T) {
	fake := platformtest.NewFake()
	manager, cache, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	cache.UpdateDefault(device.DirectionInput, *wiredMic("cached-mic"))

	if err := manager.Open(context.Background(), "sess-1", nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	calls := fake.OpenCalls()
	if len(calls) != 1 || calls[0].DeviceID != "cached-mic" {
		t.Errorf("open calls = %+v", calls)
	}
}

func TestOpenEmptyCacheAddressesSystemDefault(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	if err := manager.Open(context.Background(), "sess-1", nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	calls := fake.OpenCalls()
	if len(calls) != 1 || calls[0].DeviceID != "" {
		t.Errorf("open calls = %+v", calls)
	}
}

func TestCloseIdempotent(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	// Close on idle is a successful no-op.
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("close from idle: %v", err)
	}

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := manager.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if manager.Session() != "" {
		t.Errorf("session not cleared: %q", manager.Session())
	}
	if n := fake.OpenCount(platform.DeviceTypeCapture); n != 0 {
		t.Errorf("streams still open: %d", n)
	}
}

func TestOperationDeadlineSurfacesTimeout(t *testing.T) {
	fake := platformtest.NewFake()
	policy := testPolicy()
	policy.RetryBackoffBase = 50 * time.Millisecond
	policy.RetryBackoffCap = 200 * time.Millisecond
	policy.OpTimeout = 60 * time.Millisecond
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, policy)

	for i := 0; i < policy.MaxOpenAttempts; i++ {
		fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy)
	}

	err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1"))
	if KindOf(err) != KindTimeout {
		t.Errorf("error = %v, want timeout", err)
	}
	if manager.State() != StateIdle {
		t.Errorf("state = %s, want idle", manager.State())
	}
}

func TestSessionSurvivesSwitch(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	if err := manager.Open(context.Background(), "rec-42", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := manager.SwitchDevice(context.Background(), *wiredMic("mic-2")); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if manager.Session() != "rec-42" {
		t.Errorf("session = %q, want rec-42", manager.Session())
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, bus := newTestStream(t, fake, device.DirectionInput, testPolicy())

	states := make(chan events.StreamStateChangedEvent, 16)
	defer bus.Subscribe(func(e events.StreamStateChangedEvent) { states <- e })()
	switched := make(chan events.StreamSwitchedEvent, 4)
	defer bus.Subscribe(func(e events.StreamSwitchedEvent) { switched <- e })()

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := manager.SwitchDevice(context.Background(), *wiredMic("mic-2")); err != nil {
		t.Fatalf("switch: %v", err)
	}

	select {
	case e := <-switched:
		if e.FromUID != "mic-1" || e.ToUID != "mic-2" || e.SessionID != "sess-1" {
			t.Errorf("switched event = %+v", e)
		}
		if e.DurationMs < testPolicy().SettleDelay.Milliseconds() {
			t.Errorf("switch duration %dms shorter than the settle delay", e.DurationMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for StreamSwitchedEvent")
	}

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for !(seen["opening"] && seen["active"] && seen["closing"]) {
		select {
		case e := <-states:
			seen[e.State] = true
		case <-deadline:
			t.Fatalf("missing lifecycle states, saw %v", seen)
		}
	}
}

func TestErrorEventPublished(t *testing.T) {
	fake := platformtest.NewFake()
	policy := testPolicy()
	manager, _, bus := newTestStream(t, fake, device.DirectionInput, policy)

	errs := make(chan events.StreamErrorEvent, 4)
	defer bus.Subscribe(func(e events.StreamErrorEvent) { errs <- e })()

	for i := 0; i < policy.MaxOpenAttempts; i++ {
		fake.ScriptOpenErrors(platform.DeviceTypeCapture, platform.ErrDeviceBusy)
	}
	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err == nil {
		t.Fatal("open should fail")
	}

	select {
	case e := <-errs:
		if e.Kind != string(KindDeviceBusy) || e.Direction != "input" {
			t.Errorf("error event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for StreamErrorEvent")
	}
}

func TestOperationsSerializedFIFO(t *testing.T) {
	fake := platformtest.NewFake()
	manager, _, _ := newTestStream(t, fake, device.DirectionInput, testPolicy())

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Fire overlapping switches; the worker must execute them one at a
	// time without ever holding two handles.
	done := make(chan error, 8)
	for i := 0; i < 4; i++ {
		target := *wiredMic("mic-2")
		go func() { done <- manager.SwitchDevice(context.Background(), target) }()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Errorf("switch: %v", err)
		}
	}

	if max := fake.MaxConcurrentOpen(platform.DeviceTypeCapture); max != 1 {
		t.Errorf("max concurrent open = %d, want 1", max)
	}
}

func TestStopReleasesHandle(t *testing.T) {
	fake := platformtest.NewFake()

	cache := device.NewStateCache()
	bus := events.New()
	policy := testPolicy()
	manager := NewManager(ManagerOptions{
		Direction: device.DirectionInput,
		Platform:  fake,
		Cache:     cache,
		EventBus:  bus,
		Policy:    &policy,
	})
	manager.Start(context.Background())

	if err := manager.Open(context.Background(), "sess-1", wiredMic("mic-1")); err != nil {
		t.Fatalf("open: %v", err)
	}
	manager.Stop()

	if n := fake.OpenCount(platform.DeviceTypeCapture); n != 0 {
		t.Errorf("streams still open after Stop: %d", n)
	}
	if err := manager.Open(context.Background(), "sess-2", wiredMic("mic-1")); KindOf(err) != KindShuttingDown {
		t.Errorf("open after Stop = %v, want shutting_down", err)
	}
}
