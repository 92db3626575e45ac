// Package platformtest provides a scriptable in-memory Platform for tests.
package platformtest

import (
	"sync"
	"time"

	"github.com/nexy-voice/audiod/internal/platform"
)

// OpenCall records one OpenStream invocation.
type OpenCall struct {
	Type     platform.DeviceType
	DeviceID string
	At       time.Time
	Err      error
}

// Fake is a scriptable platform.Platform. All methods are safe for
// concurrent use.
type Fake struct {
	mu sync.Mutex

	devices  map[platform.DeviceType][]platform.RawDevice
	listErr  map[platform.DeviceType]error
	openErrs map[platform.DeviceType][]error
	subs     map[platform.DeviceType][]func()

	// NotificationsSupported controls SubscribeDefaultChange; false
	// simulates a backend without push notifications.
	NotificationsSupported bool

	opens       []OpenCall
	closes      []time.Time
	open        map[platform.DeviceType]int
	maxOpen     map[platform.DeviceType]int
	totalOpened int
}

// NewFake creates a Fake with push notifications enabled.
func NewFake() *Fake {
	return &Fake{
		devices:                make(map[platform.DeviceType][]platform.RawDevice),
		listErr:                make(map[platform.DeviceType]error),
		openErrs:               make(map[platform.DeviceType][]error),
		subs:                   make(map[platform.DeviceType][]func()),
		open:                   make(map[platform.DeviceType]int),
		maxOpen:                make(map[platform.DeviceType]int),
		NotificationsSupported: true,
	}
}

// SetDevices replaces the device list for a type. Exactly one device should
// have IsDefault set; none is valid and models an empty machine.
func (f *Fake) SetDevices(typ platform.DeviceType, devices ...platform.RawDevice) {
	f.mu.Lock()
	f.devices[typ] = devices
	f.mu.Unlock()
}

// SetDefault marks the device with the given ID as default and notifies
// subscribers, mimicking an OS default-device change.
func (f *Fake) SetDefault(typ platform.DeviceType, id string) {
	f.mu.Lock()
	devices := f.devices[typ]
	for i := range devices {
		devices[i].IsDefault = devices[i].ID == id
	}
	subs := append([]func(){}, f.subs[typ]...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// SetDefaultSilently changes the default without firing notifications,
// so only the polling watcher can observe it.
func (f *Fake) SetDefaultSilently(typ platform.DeviceType, id string) {
	f.mu.Lock()
	devices := f.devices[typ]
	for i := range devices {
		devices[i].IsDefault = devices[i].ID == id
	}
	f.mu.Unlock()
}

// SetListError makes ListDevices/DefaultDevice fail with err (nil clears).
func (f *Fake) SetListError(typ platform.DeviceType, err error) {
	f.mu.Lock()
	f.listErr[typ] = err
	f.mu.Unlock()
}

// ScriptOpenErrors queues results for successive OpenStream calls; a nil
// entry means success. Once the script is exhausted, opens succeed.
func (f *Fake) ScriptOpenErrors(typ platform.DeviceType, errs ...error) {
	f.mu.Lock()
	f.openErrs[typ] = append(f.openErrs[typ], errs...)
	f.mu.Unlock()
}

// ListDevices implements platform.Platform.
func (f *Fake) ListDevices(typ platform.DeviceType) ([]platform.RawDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[typ]; err != nil {
		return nil, err
	}
	return append([]platform.RawDevice{}, f.devices[typ]...), nil
}

// DefaultDevice implements platform.Platform.
func (f *Fake) DefaultDevice(typ platform.DeviceType) (platform.RawDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[typ]; err != nil {
		return platform.RawDevice{}, err
	}
	for _, d := range f.devices[typ] {
		if d.IsDefault {
			return d, nil
		}
	}
	return platform.RawDevice{}, platform.ErrNoDevice
}

// SubscribeDefaultChange implements platform.Platform.
func (f *Fake) SubscribeDefaultChange(typ platform.DeviceType, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.NotificationsSupported {
		return platform.ErrNotSupported
	}
	f.subs[typ] = append(f.subs[typ], fn)
	return nil
}

// OpenStream implements platform.Platform.
func (f *Fake) OpenStream(typ platform.DeviceType, deviceID string, _ platform.StreamConfig) (platform.Stream, error) {
	f.mu.Lock()

	var err error
	if queue := f.openErrs[typ]; len(queue) > 0 {
		err = queue[0]
		f.openErrs[typ] = queue[1:]
	}

	f.opens = append(f.opens, OpenCall{Type: typ, DeviceID: deviceID, At: time.Now(), Err: err})
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}

	f.open[typ]++
	f.totalOpened++
	if f.open[typ] > f.maxOpen[typ] {
		f.maxOpen[typ] = f.open[typ]
	}
	f.mu.Unlock()

	return &fakeStream{fake: f, typ: typ}, nil
}

// Close implements platform.Platform.
func (f *Fake) Close() error { return nil }

// OpenCalls returns a copy of all OpenStream invocations so far.
func (f *Fake) OpenCalls() []OpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OpenCall{}, f.opens...)
}

// CloseTimes returns the times at which streams were closed.
func (f *Fake) CloseTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time{}, f.closes...)
}

// MaxConcurrentOpen reports the highest number of simultaneously open
// streams observed for a type.
func (f *Fake) MaxConcurrentOpen(typ platform.DeviceType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen[typ]
}

// OpenCount reports the number of currently open streams for a type.
func (f *Fake) OpenCount(typ platform.DeviceType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[typ]
}

func (f *Fake) streamClosed(typ platform.DeviceType) {
	f.mu.Lock()
	f.open[typ]--
	f.closes = append(f.closes, time.Now())
	f.mu.Unlock()
}

// fakeStream is a stream handle dispensed by Fake.
type fakeStream struct {
	fake   *Fake
	typ    platform.DeviceType
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Start() error { return nil }
func (s *fakeStream) Stop() error  { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.fake.streamClosed(s.typ)
	return nil
}
