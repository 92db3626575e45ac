// Package device implements default-device tracking: descriptor
// normalization, the latest-known-state cache, push-notification ingest,
// the polling fallback, and debounced change dispatch.
package device

import (
	"strings"
	"time"

	"github.com/nexy-voice/audiod/internal/platform"
)

// Direction identifies an audio direction.
type Direction string

// Audio directions.
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Directions lists both directions in a stable order.
var Directions = []Direction{DirectionInput, DirectionOutput}

// DeviceType maps a direction onto the platform device type.
func (d Direction) DeviceType() platform.DeviceType {
	if d == DirectionOutput {
		return platform.DeviceTypePlayback
	}
	return platform.DeviceTypeCapture
}

// Source identifies how a change was detected.
type Source string

// Change detection sources.
const (
	SourceNotification Source = "notification"
	SourcePolling      Source = "polling"
)

// Defaults filled in when the platform does not report them.
const (
	defaultSampleRate    = 48000.0
	defaultBlockSizeHint = 512
	defaultLatencyHint   = 0.010
	bluetoothLatencyHint = 0.150
)

// Descriptor is an immutable description of one audio endpoint at a point
// in time. Identity is the UID and nothing else; Name is for the Bluetooth
// heuristic and logging only.
type Descriptor struct {
	UID           string
	Name          string
	Direction     Direction
	SampleRate    float64
	IsBluetooth   bool
	LatencyHint   float64
	BlockSizeHint int
}

// Same reports whether two descriptors refer to the same device.
func (d Descriptor) Same(other Descriptor) bool {
	return d.UID == other.UID
}

// NewDescriptor normalizes a raw platform device into a Descriptor,
// applying the Bluetooth name heuristic and platform defaults for fields
// the OS did not report.
func NewDescriptor(raw platform.RawDevice, direction Direction) Descriptor {
	bluetooth := IsBluetoothName(raw.Name)

	sampleRate := raw.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	latency := defaultLatencyHint
	if bluetooth {
		latency = bluetoothLatencyHint
	}

	return Descriptor{
		UID:           raw.ID,
		Name:          raw.Name,
		Direction:     direction,
		SampleRate:    sampleRate,
		IsBluetooth:   bluetooth,
		LatencyHint:   latency,
		BlockSizeHint: defaultBlockSizeHint,
	}
}

// bluetoothNameFragments are the known vendor/product name fragments used
// to classify a device as Bluetooth. The OS does not expose a reliable
// "is Bluetooth" flag uniformly, so a name heuristic is the working
// mechanism; it is imperfect on purpose.
var bluetoothNameFragments = []string{
	"bluetooth",
	"airpods",
	"beats",
	"bose",
	"buds",
	"jabra",
	"jbl",
	"sony wh",
	"sony wf",
	"hands-free",
	"headset",
}

// IsBluetoothName classifies a device name as Bluetooth by substring match.
func IsBluetoothName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range bluetoothNameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// ChangeEvent is one confirmed default-device change.
type ChangeEvent struct {
	Direction  Direction
	Previous   *Descriptor
	Current    Descriptor
	Source     Source
	ObservedAt time.Time
}
