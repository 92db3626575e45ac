package models

// StreamStatus describes one direction's stream.
type StreamStatus struct {
	Direction  string `json:"direction" example:"input" enum:"input,output" doc:"Audio direction"`
	State      string `json:"state" example:"active" enum:"idle,opening,active,closing,error_retrying" doc:"Lifecycle state"`
	DeviceUID  string `json:"device_uid,omitempty" example:"BuiltInMicrophoneDevice" doc:"Bound device, empty when idle"`
	DeviceName string `json:"device_name,omitempty" example:"MacBook Pro Microphone" doc:"Bound device name"`
	Bluetooth  bool   `json:"bluetooth" example:"false" doc:"Whether the bound device is Bluetooth"`
	SessionID  string `json:"session_id,omitempty" example:"rec-1722500000-1" doc:"Active session, empty when idle"`
}

// StreamStatusData is the stream status payload.
type StreamStatusData struct {
	Streams []StreamStatus `json:"streams" doc:"Status of both directions"`
}

// StreamStatusResponse wraps the stream status payload.
type StreamStatusResponse struct {
	Body StreamStatusData
}
