package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/nexy-voice/audiod/internal/telemetry"
)

// DefaultDebounce is the window used to coalesce rapid device flaps, e.g.
// the OS briefly reporting an intermediate device during a Bluetooth
// reconnect.
const DefaultDebounce = 300 * time.Millisecond

// rawSignal is one unvalidated change signal entering the manager.
type rawSignal struct {
	direction Direction
	raw       platform.RawDevice
	source    Source
	at        time.Time
}

// pendingChange is a change being debounced for one direction.
type pendingChange struct {
	previous *Descriptor
	current  Descriptor
	source   Source
	firstAt  time.Time
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Platform  platform.Platform
	Cache     *StateCache
	EventBus  *events.Bus
	Telemetry *telemetry.Recorder
	// Debounce overrides DefaultDebounce; useful in tests.
	Debounce time.Duration
}

// Manager is the single authoritative entry point for "a default device
// changed". It normalizes raw platform data, dedups against the cache,
// debounces per direction and dispatches ChangeEvents to subscribers in
// registration order.
type Manager struct {
	platform  platform.Platform
	cache     *StateCache
	bus       *events.Bus
	telemetry *telemetry.Recorder
	logger    *slog.Logger
	debounce  time.Duration

	raw chan rawSignal

	subsMu sync.Mutex
	subs   map[Direction][]func(ChangeEvent)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager. Cache and EventBus are required; Telemetry
// may be nil (telemetry disabled).
func NewManager(opts ManagerOptions) *Manager {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Manager{
		platform:  opts.Platform,
		cache:     opts.Cache,
		bus:       opts.EventBus,
		telemetry: opts.Telemetry,
		logger:    logging.GetLogger("device"),
		debounce:  debounce,
		raw:       make(chan rawSignal, 32),
		subs:      make(map[Direction][]func(ChangeEvent)),
		done:      make(chan struct{}),
	}
}

// OnChange registers a subscriber for one direction. Subscribers are
// invoked synchronously in registration order; all subscribers see an
// event before the next signal for that direction is processed. Returns an
// unsubscribe function.
func (m *Manager) OnChange(direction Direction, fn func(ChangeEvent)) func() {
	m.subsMu.Lock()
	m.subs[direction] = append(m.subs[direction], fn)
	idx := len(m.subs[direction]) - 1
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if idx < len(m.subs[direction]) {
			m.subs[direction][idx] = nil
		}
	}
}

// Start registers for platform push notifications and begins the dispatch
// loop. Notification registration failure is not an error: it is logged
// once and the manager relies solely on the polling watcher from then on.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, direction := range Directions {
		direction := direction
		err := m.platform.SubscribeDefaultChange(direction.DeviceType(), func() {
			m.onNotification(direction)
		})
		if err != nil {
			if errors.Is(err, platform.ErrNotSupported) {
				m.logger.Info("Push notifications unavailable, relying on polling",
					"direction", direction)
			} else {
				m.logger.Warn("Failed to register device notifications, relying on polling",
					"direction", direction, "error", err)
			}
		}
	}

	go m.run(ctx)
}

// Stop terminates the dispatch loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// onNotification handles one push notification: query the new default and
// feed it through the common ingest path.
func (m *Manager) onNotification(direction Direction) {
	raw, err := m.platform.DefaultDevice(direction.DeviceType())
	if err != nil {
		// Malformed or missing platform data is dropped with a warning,
		// never escalated to subscribers.
		m.logger.Warn("Ignoring device notification, default query failed",
			"direction", direction, "error", err)
		return
	}
	m.Ingest(direction, raw, SourceNotification)
}

// Ingest feeds one raw change signal into the validation path. Both the
// notification callback and the polling watcher enter here, so dedup and
// debounce treat them identically.
func (m *Manager) Ingest(direction Direction, raw platform.RawDevice, source Source) {
	if raw.ID == "" {
		m.logger.Warn("Dropping malformed device data", "direction", direction, "name", raw.Name)
		return
	}

	sig := rawSignal{direction: direction, raw: raw, source: source, at: time.Now()}
	select {
	case m.raw <- sig:
	default:
		m.logger.Warn("Signal queue full, dropping device signal",
			"direction", direction, "uid", raw.ID, "source", source)
	}
}

// run is the dispatch loop: one signal is fully processed (including its
// debounce resolution) before the next signal for the same direction can
// produce a dispatch.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	pending := make(map[Direction]*pendingChange)
	timers := make(map[Direction]*time.Timer)
	timerC := make(map[Direction]<-chan time.Time)
	for _, d := range Directions {
		timerC[d] = nil
	}

	stopTimers := func() {
		for _, t := range timers {
			if t != nil {
				t.Stop()
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimers()
			m.logger.Debug("Device change dispatch loop stopped")
			return

		case sig := <-m.raw:
			m.handleSignal(sig, pending, timers, timerC)

		case <-timerC[DirectionInput]:
			timerC[DirectionInput] = nil
			m.flush(DirectionInput, pending)

		case <-timerC[DirectionOutput]:
			timerC[DirectionOutput] = nil
			m.flush(DirectionOutput, pending)
		}
	}
}

// handleSignal validates one signal against the cache and starts or
// extends the direction's debounce window.
func (m *Manager) handleSignal(
	sig rawSignal,
	pending map[Direction]*pendingChange,
	timers map[Direction]*time.Timer,
	timerC map[Direction]<-chan time.Time,
) {
	descriptor := NewDescriptor(sig.raw, sig.direction)

	var previous *Descriptor
	if prev, ok := m.cache.Default(sig.direction); ok {
		previous = &prev
	}

	if !m.cache.UpdateDefault(sig.direction, descriptor) {
		// Duplicate signal for the already-current device: a polling tick
		// that raced a notification, or a redundant OS refresh.
		m.logger.Debug("Discarding redundant device signal",
			"direction", sig.direction, "uid", descriptor.UID, "source", sig.source)
		return
	}

	if p := pending[sig.direction]; p != nil {
		// Coalesce: keep the pre-window previous, track the latest
		// descriptor seen in the window.
		p.current = descriptor
		p.source = sig.source
	} else {
		pending[sig.direction] = &pendingChange{
			previous: previous,
			current:  descriptor,
			source:   sig.source,
			firstAt:  sig.at,
		}
	}

	if t := timers[sig.direction]; t != nil {
		t.Stop()
	}
	timer := time.NewTimer(m.debounce)
	timers[sig.direction] = timer
	timerC[sig.direction] = timer.C
}

// flush dispatches the settled change for one direction.
func (m *Manager) flush(direction Direction, pending map[Direction]*pendingChange) {
	p := pending[direction]
	if p == nil {
		return
	}
	delete(pending, direction)

	if p.previous != nil && p.previous.UID == p.current.UID {
		// The window settled back on the pre-window device (A, B, A): the
		// flap resolved to a no-op. The cache already holds the right
		// descriptor; dispatching here would trigger a redundant stream
		// switch on an unchanged default.
		m.logger.Debug("Discarding flap that settled on the same device",
			"direction", direction, "uid", p.current.UID)
		return
	}

	event := ChangeEvent{
		Direction:  direction,
		Previous:   p.previous,
		Current:    p.current,
		Source:     p.source,
		ObservedAt: time.Now(),
	}

	m.logger.Info("Default device changed",
		"direction", direction,
		"uid", event.Current.UID,
		"name", event.Current.Name,
		"bluetooth", event.Current.IsBluetooth,
		"source", event.Source)

	m.subsMu.Lock()
	subs := make([]func(ChangeEvent), len(m.subs[direction]))
	copy(subs, m.subs[direction])
	m.subsMu.Unlock()

	for i, fn := range subs {
		if fn == nil {
			continue
		}
		m.dispatchOne(i, direction, fn, event)
	}

	previousUID := ""
	if p.previous != nil {
		previousUID = p.previous.UID
	}

	m.bus.Publish(events.DeviceChangedEvent{
		Direction:   string(direction),
		PreviousUID: previousUID,
		CurrentUID:  event.Current.UID,
		CurrentName: event.Current.Name,
		Bluetooth:   event.Current.IsBluetooth,
		Source:      string(event.Source),
		Timestamp:   event.ObservedAt.Format(time.RFC3339),
	})

	if m.telemetry != nil {
		m.telemetry.DeviceChange(string(direction), string(event.Source))
		m.telemetry.Decision("device_changed", "device_change_manager", map[string]any{
			"direction": direction,
			"previous":  previousUID,
			"current":   event.Current.UID,
			"detected":  event.Source,
		}, time.Since(p.firstAt))
	}
}

// dispatchOne calls a single subscriber, isolating panics so one failing
// subscriber cannot starve the others.
func (m *Manager) dispatchOne(idx int, direction Direction, fn func(ChangeEvent), event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Device change subscriber panicked",
				"direction", direction, "subscriber", idx, "panic", r)
		}
	}()
	fn(event)
}
