package models

// DeviceInfo describes one audio endpoint known to the platform.
type DeviceInfo struct {
	UID        string `json:"uid" example:"BuiltInMicrophoneDevice" doc:"Stable device identifier"`
	Name       string `json:"name" example:"MacBook Pro Microphone" doc:"Human-readable device name"`
	Direction  string `json:"direction" example:"input" enum:"input,output" doc:"Audio direction"`
	SampleRate int    `json:"sample_rate" example:"48000" doc:"Nominal sample rate in Hz"`
	Bluetooth  bool   `json:"bluetooth" example:"false" doc:"Whether the device is a Bluetooth endpoint"`
	Default    bool   `json:"default" example:"true" doc:"Whether this is the current default for its direction"`
}

// DeviceListData is the device list payload.
type DeviceListData struct {
	Devices []DeviceInfo `json:"devices" doc:"All known audio devices, both directions"`
}

// DeviceListResponse wraps the device list payload.
type DeviceListResponse struct {
	Body DeviceListData
}

// DefaultDevicesData holds the cached default descriptor per direction.
type DefaultDevicesData struct {
	Input  *DeviceInfo `json:"input,omitempty" doc:"Current default input device, absent if none observed yet"`
	Output *DeviceInfo `json:"output,omitempty" doc:"Current default output device, absent if none observed yet"`
}

// DefaultDevicesResponse wraps the default devices payload.
type DefaultDevicesResponse struct {
	Body DefaultDevicesData
}
