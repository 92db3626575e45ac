// Package coordinator is the facade the voice pipeline talks to. Recording
// and playback collaborators start and stop logical sessions here; the
// coordinator owns both stream managers and reconnects them to new default
// devices as the change manager reports them.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/stream"
	"github.com/nexy-voice/audiod/internal/telemetry"
)

// Options configures a Coordinator.
type Options struct {
	DeviceManager *device.Manager
	Input         *stream.Manager
	Output        *stream.Manager
	EventBus      *events.Bus
	Telemetry     *telemetry.Recorder
}

// Coordinator binds device change notifications to the two stream managers
// and exposes the session-oriented API the rest of the assistant uses.
type Coordinator struct {
	deviceManager *device.Manager
	streams       map[device.Direction]*stream.Manager
	bus           *events.Bus
	telemetry     *telemetry.Recorder
	logger        *slog.Logger

	seq    atomic.Uint64
	unsubs []func()
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		deviceManager: opts.DeviceManager,
		streams: map[device.Direction]*stream.Manager{
			device.DirectionInput:  opts.Input,
			device.DirectionOutput: opts.Output,
		},
		bus:       opts.EventBus,
		telemetry: opts.Telemetry,
		logger:    logging.GetLogger("coordinator"),
	}
}

// Start subscribes to device changes for both directions.
func (c *Coordinator) Start() {
	for _, direction := range device.Directions {
		direction := direction
		unsub := c.deviceManager.OnChange(direction, func(e device.ChangeEvent) {
			c.handleChange(direction, e)
		})
		c.unsubs = append(c.unsubs, unsub)
	}
}

// Stop removes the device change subscriptions. Stream managers are owned
// by the caller and stopped separately.
func (c *Coordinator) Stop() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// BeginRecording opens the input stream and returns the opaque session ID
// the caller uses to end it. The device is resolved from the state cache,
// falling back to the system default.
func (c *Coordinator) BeginRecording(ctx context.Context) (string, error) {
	return c.begin(ctx, device.DirectionInput, "rec")
}

// EndRecording closes the input stream for the given session. Ending a
// session that is no longer active is a no-op.
func (c *Coordinator) EndRecording(ctx context.Context, sessionID string) error {
	return c.end(ctx, device.DirectionInput, sessionID)
}

// BeginPlayback opens the output stream; the playback analog of
// BeginRecording.
func (c *Coordinator) BeginPlayback(ctx context.Context) (string, error) {
	return c.begin(ctx, device.DirectionOutput, "play")
}

// EndPlayback closes the output stream for the given session.
func (c *Coordinator) EndPlayback(ctx context.Context, sessionID string) error {
	return c.end(ctx, device.DirectionOutput, sessionID)
}

// IsActive reports whether the direction's stream is active.
func (c *Coordinator) IsActive(direction device.Direction) bool {
	return c.streams[direction].IsActive()
}

// State returns the direction's stream lifecycle state.
func (c *Coordinator) State(direction device.Direction) stream.State {
	return c.streams[direction].State()
}

// Session returns the direction's active session ID, empty when idle.
func (c *Coordinator) Session(direction device.Direction) string {
	return c.streams[direction].Session()
}

// CurrentDevice returns the device a direction's stream is bound to.
func (c *Coordinator) CurrentDevice(direction device.Direction) (device.Descriptor, bool) {
	return c.streams[direction].CurrentDevice()
}

// OnStreamSwitched subscribes to completed device switches. Collaborators
// use this to learn the stream moved without having had to restart their
// session. Returns an unsubscribe function.
func (c *Coordinator) OnStreamSwitched(fn func(events.StreamSwitchedEvent)) func() {
	return c.bus.Subscribe(fn)
}

// OnStreamStateChanged subscribes to lifecycle transitions, e.g. to learn
// when a stream became active. Returns an unsubscribe function.
func (c *Coordinator) OnStreamStateChanged(fn func(events.StreamStateChangedEvent)) func() {
	return c.bus.Subscribe(fn)
}

func (c *Coordinator) begin(ctx context.Context, direction device.Direction, prefix string) (string, error) {
	sessionID := fmt.Sprintf("%s-%d-%d", prefix, time.Now().Unix(), c.seq.Add(1))

	if err := c.streams[direction].Open(ctx, sessionID, nil); err != nil {
		return "", err
	}
	c.logger.Info("Session started", "direction", direction, "session", sessionID)
	return sessionID, nil
}

func (c *Coordinator) end(ctx context.Context, direction device.Direction, sessionID string) error {
	manager := c.streams[direction]

	current := manager.Session()
	if current == "" {
		// Already idle; ending twice is fine.
		return nil
	}
	if current != sessionID {
		return fmt.Errorf("session %q is not active on %s (current %q)", sessionID, direction, current)
	}

	if err := manager.Close(ctx); err != nil {
		return err
	}
	c.logger.Info("Session ended", "direction", direction, "session", sessionID)
	return nil
}

// handleChange reacts to one settled device change. Only a direction whose
// stream is currently open (or opening) follows the new device; an idle
// direction just keeps the cache fresh for its next open. The switch is
// requested asynchronously so this callback never stalls the dispatch loop
// behind a multi-second Bluetooth settle.
func (c *Coordinator) handleChange(direction device.Direction, e device.ChangeEvent) {
	manager := c.streams[direction]
	state := manager.State()

	follow := state == stream.StateActive || state == stream.StateOpening
	if follow {
		if bound, ok := manager.CurrentDevice(); ok && bound.UID == e.Current.UID {
			// Already on that device; closing and reopening the stream
			// would be an audible outage for nothing.
			c.logger.Debug("Ignoring device change, stream already bound",
				"direction", direction, "uid", e.Current.UID)
			follow = false
		}
	}
	if follow {
		c.logger.Info("Following default device change",
			"direction", direction, "uid", e.Current.UID, "bluetooth", e.Current.IsBluetooth)
		manager.RequestSwitch(e.Current)
	} else {
		c.logger.Debug("Ignoring device change, stream not open",
			"direction", direction, "uid", e.Current.UID, "state", state)
	}

	if c.telemetry != nil {
		decision := "device_change_ignored"
		if follow {
			decision = "device_change_followed"
		}
		c.telemetry.Decision(decision, "coordinator", map[string]any{
			"direction": direction,
			"device":    e.Current.UID,
			"state":     state,
		}, 0)
	}
}
