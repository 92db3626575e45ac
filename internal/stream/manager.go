// Package stream owns the lifecycle of one live audio stream per
// direction: open, device switch with settle timing, retry on transient
// platform errors, and graceful close. One Manager exists per direction;
// the two directions never block each other.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/nexy-voice/audiod/internal/telemetry"
)

type opKind int

const (
	opOpen opKind = iota
	opSwitch
	opClose
)

func (k opKind) String() string {
	switch k {
	case opOpen:
		return "open"
	case opSwitch:
		return "switch_device"
	default:
		return "close"
	}
}

// operation is one queued request. Requests are executed strictly in FIFO
// order by the worker goroutine; this is the single-flight guarantee that
// keeps two operations from fighting over one device.
type operation struct {
	kind    opKind
	ctx     context.Context
	target  *device.Descriptor
	session string
	reply   chan error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Direction device.Direction
	Platform  platform.Platform
	Cache     *device.StateCache
	EventBus  *events.Bus
	Telemetry *telemetry.Recorder
	// Policy overrides the direction's default policy.
	Policy *Policy
}

// Manager owns one direction's stream lifecycle.
type Manager struct {
	direction device.Direction
	platform  platform.Platform
	cache     *device.StateCache
	bus       *events.Bus
	telemetry *telemetry.Recorder
	logger    *slog.Logger

	policyMu sync.RWMutex
	policy   Policy

	mu      sync.RWMutex
	state   State
	handle  platform.Stream
	bound   *device.Descriptor
	session string

	ops    chan operation
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a stream manager for one direction.
func NewManager(opts ManagerOptions) *Manager {
	policy := DefaultInputPolicy()
	if opts.Direction == device.DirectionOutput {
		policy = DefaultOutputPolicy()
	}
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	return &Manager{
		direction: opts.Direction,
		platform:  opts.Platform,
		cache:     opts.Cache,
		bus:       opts.EventBus,
		telemetry: opts.Telemetry,
		logger:    logging.GetLogger("stream").With("direction", string(opts.Direction)),
		policy:    policy,
		state:     StateIdle,
		ops:       make(chan operation, 16),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop terminates the worker and releases any open handle.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.mu.Lock()
	m.closeHandleLocked()
	m.state = StateIdle
	m.mu.Unlock()
}

// Open opens the stream. Valid only from idle. A nil target resolves the
// device from the state cache, falling back to system-default addressing
// when the cache stays empty. The sessionID is opaque: it identifies the
// logical recording/playback session and survives device switches.
func (m *Manager) Open(ctx context.Context, sessionID string, target *device.Descriptor) error {
	return m.enqueue(ctx, operation{kind: opOpen, target: target, session: sessionID})
}

// SwitchDevice moves the live stream to a new device. Valid from active or
// opening. The logical session is not interrupted: only the underlying
// platform handle changes.
func (m *Manager) SwitchDevice(ctx context.Context, target device.Descriptor) error {
	return m.enqueue(ctx, operation{kind: opSwitch, target: &target})
}

// RequestSwitch enqueues a device switch without waiting for it. Used by
// change subscribers, which must not stall the dispatch loop for the
// seconds a Bluetooth settle takes. Terminal errors are logged and
// published, not returned.
func (m *Manager) RequestSwitch(target device.Descriptor) {
	go func() {
		if err := m.SwitchDevice(context.Background(), target); err != nil {
			m.logger.Error("Device switch failed", "target", target.UID, "error", err)
		}
	}()
}

// Close tears the stream down. Calling Close on an idle manager is a
// successful no-op.
func (m *Manager) Close(ctx context.Context) error {
	return m.enqueue(ctx, operation{kind: opClose})
}

// IsActive reports whether the stream is currently active.
func (m *Manager) IsActive() bool {
	return m.State() == StateActive
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentDevice returns the descriptor the stream is bound to, if any.
func (m *Manager) CurrentDevice() (device.Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bound == nil {
		return device.Descriptor{}, false
	}
	return *m.bound, true
}

// Session returns the current logical session ID, empty when idle.
func (m *Manager) Session() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// SetPolicy replaces the tunables. Applies to operations started after the
// call; an in-flight operation keeps the policy it started with.
func (m *Manager) SetPolicy(p Policy) {
	m.policyMu.Lock()
	m.policy = p
	m.policyMu.Unlock()
}

// Policy returns the current tunables.
func (m *Manager) Policy() Policy {
	m.policyMu.RLock()
	defer m.policyMu.RUnlock()
	return m.policy
}

// enqueue submits an operation and waits for the worker to execute it.
func (m *Manager) enqueue(ctx context.Context, op operation) error {
	op.ctx = ctx
	op.reply = make(chan error, 1)

	select {
	case m.ops <- op:
	case <-m.done:
		return newError(KindShuttingDown, op.kind.String(), string(m.direction), nil)
	case <-ctx.Done():
		return newError(KindTimeout, op.kind.String(), string(m.direction), ctx.Err())
	}

	select {
	case err := <-op.reply:
		return err
	case <-m.done:
		return newError(KindShuttingDown, op.kind.String(), string(m.direction), nil)
	}
}

// run executes queued operations one at a time.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-m.ops:
			op.reply <- m.execute(ctx, op)
		}
	}
}

// execute applies the per-operation deadline and dispatches.
func (m *Manager) execute(parent context.Context, op operation) error {
	policy := m.Policy()

	ctx := op.ctx
	if ctx == nil {
		ctx = parent
	}
	ctx, cancel := context.WithTimeout(ctx, policy.OpTimeout)
	defer cancel()

	started := time.Now()
	var err error
	switch op.kind {
	case opOpen:
		err = m.doOpen(ctx, policy, op)
	case opSwitch:
		err = m.doSwitch(ctx, policy, op)
	case opClose:
		err = m.doClose()
	}

	if err != nil {
		m.reportError(op.kind.String(), started, err)
	}
	return err
}

// doOpen implements Open on the worker goroutine.
func (m *Manager) doOpen(ctx context.Context, policy Policy, op operation) error {
	if st := m.State(); st != StateIdle {
		return newError(KindInvalidState, "open", string(m.direction),
			fmt.Errorf("open from %s", st))
	}

	target := op.target
	if target == nil {
		target = m.resolveFromCache(ctx, policy)
	}

	m.mu.Lock()
	m.session = op.session
	m.mu.Unlock()

	m.setState(StateOpening, uidOf(target))
	start := time.Now()
	if err := m.openStream(ctx, policy, target, "open"); err != nil {
		m.setState(StateIdle, "")
		m.clearSession()
		return err
	}

	bound, _ := m.CurrentDevice()
	m.decision("stream_opened", map[string]any{
		"direction": m.direction,
		"device":    bound.UID,
		"session":   op.session,
	}, time.Since(start))
	return nil
}

// doSwitch implements SwitchDevice on the worker goroutine.
func (m *Manager) doSwitch(ctx context.Context, policy Policy, op operation) error {
	st := m.State()
	if st != StateActive && st != StateOpening {
		return newError(KindInvalidState, "switch_device", string(m.direction),
			fmt.Errorf("switch_device from %s", st))
	}

	target := *op.target
	from, _ := m.CurrentDevice()
	session := m.Session()
	start := time.Now()

	// Drain and release the old handle first: the state machine forbids
	// a second Opening/Active handle for this direction.
	m.setState(StateClosing, from.UID)
	m.mu.Lock()
	m.closeHandleLocked()
	m.mu.Unlock()
	m.setState(StateIdle, "")

	// Settle before reacquiring; Bluetooth paths need much longer to
	// release the hardware route than wired ones.
	if !sleepCtx(ctx, policy.Settle(target.IsBluetooth)) {
		m.clearSession()
		return newError(KindTimeout, "switch_device", string(m.direction), ctx.Err())
	}

	m.setState(StateOpening, target.UID)
	err := m.openStream(ctx, policy, &target, "switch_device")
	if err != nil {
		// Before leaving this direction dead, try the system default.
		m.logger.Warn("Switch target failed, falling back to system default",
			"target", target.UID, "error", err)
		if m.State() != StateOpening {
			m.setState(StateOpening, "")
		}
		if fallbackErr := m.openStream(ctx, policy, nil, "switch_device"); fallbackErr != nil {
			m.setState(StateIdle, "")
			m.clearSession()
			return err
		}
	}

	bound, _ := m.CurrentDevice()
	duration := time.Since(start)

	m.bus.Publish(events.StreamSwitchedEvent{
		Direction:  string(m.direction),
		FromUID:    from.UID,
		ToUID:      bound.UID,
		SessionID:  session,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	if m.telemetry != nil {
		m.telemetry.StreamSwitch(string(m.direction), duration)
	}
	m.decision("stream_switched", map[string]any{
		"direction": m.direction,
		"from":      from.UID,
		"to":        bound.UID,
		"session":   session,
	}, duration)
	return nil
}

// doClose implements Close on the worker goroutine.
func (m *Manager) doClose() error {
	if m.State() == StateIdle {
		return nil
	}

	cur, _ := m.CurrentDevice()
	start := time.Now()

	m.setState(StateClosing, cur.UID)
	m.mu.Lock()
	m.closeHandleLocked()
	m.mu.Unlock()
	m.setState(StateIdle, "")
	m.clearSession()

	m.decision("stream_closed", map[string]any{
		"direction": m.direction,
		"device":    cur.UID,
	}, time.Since(start))
	return nil
}

// resolveFromCache retries the state cache a bounded number of times, then
// gives up and signals system-default addressing by returning nil.
func (m *Manager) resolveFromCache(ctx context.Context, policy Policy) *device.Descriptor {
	for attempt := 0; attempt < policy.CacheFallbackAttempts; attempt++ {
		if cached, ok := m.cache.Default(m.direction); ok {
			return &cached
		}
		if attempt < policy.CacheFallbackAttempts-1 {
			if !sleepCtx(ctx, policy.CacheFallbackDelay) {
				break
			}
		}
	}
	m.logger.Info("No cached default device, addressing system default")
	return nil
}

// openStream runs the retry loop for one open. On success the handle is
// adopted and the state becomes active. Callers set the initial opening
// state; internal retries toggle opening ↔ error_retrying.
func (m *Manager) openStream(ctx context.Context, policy Policy, target *device.Descriptor, opName string) error {
	deviceID := ""
	bluetooth := false
	if target != nil {
		deviceID = target.UID
		bluetooth = target.IsBluetooth
	}

	cfg := platform.StreamConfig{Channels: m.channels()}
	if target != nil && !bluetooth {
		// Wired/built-in devices get the cached parameters. Bluetooth
		// paths keep zero values: forcing a sample rate or block size on
		// them is what provokes the transient open errors to begin with.
		cfg.SampleRate = uint32(target.SampleRate)
		cfg.BlockSize = uint32(target.BlockSizeHint)
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxOpenAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(KindTimeout, opName, string(m.direction), ctxErr)
		}

		handle, err := m.platform.OpenStream(m.direction.DeviceType(), deviceID, cfg)
		if err == nil {
			if startErr := handle.Start(); startErr != nil {
				_ = handle.Close()
				err = startErr
			}
		}
		if err == nil {
			m.adopt(handle, target)
			m.setState(StateActive, deviceID)
			return nil
		}
		lastErr = err

		if bluetooth && deviceID != "" && errors.Is(err, platform.ErrNoDevice) {
			// The platform could not hand out a concrete handle for the
			// Bluetooth endpoint (observed on reconnect); address the
			// system default instead of the UID.
			m.logger.Warn("Bluetooth device has no concrete handle, using system default addressing",
				"uid", deviceID)
			deviceID = ""
			continue
		}

		if !isTransient(err) {
			return newError(classify(err), opName, string(m.direction), err)
		}

		m.logger.Warn("Transient stream open failure",
			"attempt", attempt, "max_attempts", policy.MaxOpenAttempts, "error", err)
		if m.telemetry != nil {
			m.telemetry.StreamRetry(string(m.direction), string(classify(err)))
		}
		m.setState(StateErrorRetrying, deviceID)

		if attempt < policy.MaxOpenAttempts {
			if !sleepCtx(ctx, policy.Backoff(attempt)) {
				return newError(KindTimeout, opName, string(m.direction), ctx.Err())
			}
			m.setState(StateOpening, deviceID)
		}
	}

	return newError(classify(lastErr), opName, string(m.direction),
		fmt.Errorf("retry budget exhausted after %d attempts: %w", policy.MaxOpenAttempts, lastErr))
}

// adopt installs the new handle and bound descriptor.
func (m *Manager) adopt(handle platform.Stream, target *device.Descriptor) {
	m.mu.Lock()
	m.handle = handle
	if target != nil {
		bound := *target
		m.bound = &bound
	} else {
		m.bound = &device.Descriptor{Direction: m.direction, Name: "system default"}
	}
	m.mu.Unlock()
}

// closeHandleLocked stops and releases the current handle. Close failures
// are logged, never propagated: a stream we cannot close is a stream we no
// longer own.
func (m *Manager) closeHandleLocked() {
	if m.handle == nil {
		return
	}
	if err := m.handle.Stop(); err != nil {
		m.logger.Warn("Stream stop failed", "error", err)
	}
	if err := m.handle.Close(); err != nil {
		m.logger.Warn("Stream close failed", "error", err)
	}
	m.handle = nil
	m.bound = nil
}

// setState applies a lifecycle transition and publishes it.
func (m *Manager) setState(next State, deviceUID string) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	if !prev.CanTransition(next) {
		m.logger.Error("Illegal stream state transition", "from", prev, "to", next)
	}
	m.state = next
	m.mu.Unlock()

	m.logger.Debug("Stream state", "from", prev, "to", next, "device", deviceUID)
	m.bus.Publish(events.StreamStateChangedEvent{
		Direction: string(m.direction),
		State:     string(next),
		DeviceUID: deviceUID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	m.session = ""
	m.mu.Unlock()
}

// reportError publishes a terminal operation failure.
func (m *Manager) reportError(op string, started time.Time, err error) {
	kind := KindOf(err)
	m.logger.Error("Stream operation failed", "op", op, "kind", kind, "error", err)

	m.bus.Publish(events.StreamErrorEvent{
		Direction: string(m.direction),
		Kind:      string(kind),
		Message:   err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if m.telemetry != nil {
		m.telemetry.StreamError(string(m.direction), string(kind))
	}
	m.decision("stream_error", map[string]any{
		"direction": m.direction,
		"op":        op,
		"kind":      kind,
	}, time.Since(started))
}

func (m *Manager) decision(decision string, ctx map[string]any, duration time.Duration) {
	if m.telemetry != nil {
		m.telemetry.Decision(decision, "stream_manager", ctx, duration)
	}
}

// channels returns the channel count for this direction.
func (m *Manager) channels() uint32 {
	if m.direction == device.DirectionOutput {
		return 2
	}
	return 1
}

func uidOf(d *device.Descriptor) string {
	if d == nil {
		return ""
	}
	return d.UID
}

// sleepCtx sleeps for d unless the context ends first; returns false when
// interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
