//go:build !cgo || noaudio

package platform

// noopPlatform is the backend used when the binary is built without cgo.
// Every query reports an empty machine; stream opens fail with ErrNoDevice.
type noopPlatform struct{}

func newBackend() (Platform, error) {
	return noopPlatform{}, nil
}

func (noopPlatform) ListDevices(DeviceType) ([]RawDevice, error) {
	return nil, nil
}

func (noopPlatform) DefaultDevice(DeviceType) (RawDevice, error) {
	return RawDevice{}, ErrNoDevice
}

func (noopPlatform) SubscribeDefaultChange(DeviceType, func()) error {
	return ErrNotSupported
}

func (noopPlatform) OpenStream(DeviceType, string, StreamConfig) (Stream, error) {
	return nil, ErrNoDevice
}

func (noopPlatform) Close() error { return nil }
