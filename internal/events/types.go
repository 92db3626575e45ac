package events

// Event type constants for kelindar/event.
const (
	TypeDeviceChanged uint32 = iota + 1
	TypeStreamStateChanged
	TypeStreamSwitched
	TypeStreamError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceChangedEvent is published when the default audio device for a
// direction changes (after dedup and debounce).
type DeviceChangedEvent struct {
	Direction   string `json:"direction" example:"input" doc:"Audio direction: input or output"`
	PreviousUID string `json:"previous_uid,omitempty" example:"builtin-in" doc:"UID of the previous default device, empty on first observation"`
	CurrentUID  string `json:"current_uid" example:"airpods-1" doc:"UID of the new default device"`
	CurrentName string `json:"current_name" example:"AirPods Pro" doc:"Display name of the new default device"`
	Bluetooth   bool   `json:"bluetooth" example:"true" doc:"Whether the new device is classified as Bluetooth"`
	Source      string `json:"source" example:"notification" doc:"Detection source: notification or polling"`
	Timestamp   string `json:"timestamp" example:"2026-08-28T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceChangedEvent.
func (e DeviceChangedEvent) Type() uint32 { return TypeDeviceChanged }

// StreamStateChangedEvent is published on every stream state transition.
type StreamStateChangedEvent struct {
	Direction string `json:"direction" example:"output" doc:"Audio direction: input or output"`
	State     string `json:"state" example:"active" doc:"New stream state"`
	DeviceUID string `json:"device_uid,omitempty" example:"airpods-1" doc:"Device the stream is bound to, if any"`
	Timestamp string `json:"timestamp" example:"2026-08-28T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamSwitchedEvent is published when a live stream finished moving from
// one device to another without interrupting the logical session.
type StreamSwitchedEvent struct {
	Direction  string `json:"direction" example:"output" doc:"Audio direction: input or output"`
	FromUID    string `json:"from_uid" example:"builtin-out" doc:"UID of the device the stream left"`
	ToUID      string `json:"to_uid" example:"airpods-1" doc:"UID of the device the stream moved to"`
	SessionID  string `json:"session_id,omitempty" doc:"Opaque session identifier, preserved across the switch"`
	DurationMs int64  `json:"duration_ms" example:"2840" doc:"Close-to-reopen duration in milliseconds"`
	Timestamp  string `json:"timestamp" example:"2026-08-28T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamSwitchedEvent.
func (e StreamSwitchedEvent) Type() uint32 { return TypeStreamSwitched }

// StreamErrorEvent is published when a stream operation fails terminally.
type StreamErrorEvent struct {
	Direction string `json:"direction" example:"input" doc:"Audio direction: input or output"`
	Kind      string `json:"kind" example:"no_device" doc:"Error kind"`
	Message   string `json:"message" doc:"Human-readable error description"`
	Timestamp string `json:"timestamp" example:"2026-08-28T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }
