// Package platform is the OS audio leaf: device enumeration, default-device
// queries, change subscriptions, and raw stream open/close. Everything above
// it talks to the Platform interface so tests can substitute a scripted
// implementation.
package platform

import "errors"

// DeviceType selects the audio direction at the platform level.
type DeviceType string

// Platform device types.
const (
	DeviceTypeCapture  DeviceType = "capture"
	DeviceTypePlayback DeviceType = "playback"
)

// Sentinel errors. Backends map their native error codes onto these so the
// layers above can classify failures without knowing the backend.
var (
	// ErrDeviceBusy is the transient "device busy / in use" open failure.
	ErrDeviceBusy = errors.New("audio device busy")

	// ErrInvalidConfig is the transient "invalid property/configuration"
	// open failure, seen when forcing parameters a device path rejects.
	ErrInvalidConfig = errors.New("invalid device configuration")

	// ErrNoDevice means the requested device does not exist (anymore).
	ErrNoDevice = errors.New("no such audio device")

	// ErrNotSupported is returned by SubscribeDefaultChange when the
	// backend cannot deliver push notifications; callers degrade to
	// polling.
	ErrNotSupported = errors.New("not supported by audio backend")
)

// RawDevice is one audio endpoint as reported by the OS, before
// normalization into a device.Descriptor.
type RawDevice struct {
	ID         string
	Name       string
	IsDefault  bool
	SampleRate float64
	Channels   uint32
}

// StreamConfig carries the parameters for opening a raw stream.
// Zero values mean "let the device decide".
type StreamConfig struct {
	SampleRate uint32
	Channels   uint32
	// BlockSize is the period size hint in frames.
	BlockSize uint32
	// OnData receives raw sample frames for capture streams and fills
	// them for playback streams. May be nil for consumers that only care
	// about stream lifecycle.
	OnData func(output, input []byte, frameCount uint32)
}

// Stream is one open raw audio stream.
type Stream interface {
	// Start begins capture/playback.
	Start() error

	// Stop halts the stream, draining whatever the backend needs to flush.
	Stop() error

	// Close releases the OS handle. The stream is unusable afterwards.
	Close() error
}

// Platform is the OS audio API surface consumed by the device and stream
// layers.
type Platform interface {
	// ListDevices enumerates current devices of the given type.
	ListDevices(typ DeviceType) ([]RawDevice, error)

	// DefaultDevice returns the current OS default for the given type.
	// Returns ErrNoDevice when the OS reports none.
	DefaultDevice(typ DeviceType) (RawDevice, error)

	// SubscribeDefaultChange registers fn to be invoked whenever the OS
	// reports a default-device change for the given type. Returns
	// ErrNotSupported when the backend has no push mechanism.
	SubscribeDefaultChange(typ DeviceType, fn func()) error

	// OpenStream opens a raw stream on the device with the given ID.
	// An empty deviceID addresses the system default device.
	OpenStream(typ DeviceType, deviceID string, cfg StreamConfig) (Stream, error)

	// Close releases the platform context.
	Close() error
}

// New returns the platform backend compiled into this binary.
func New() (Platform, error) {
	return newBackend()
}
