//go:build cgo && !noaudio

package platform

import (
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/nexy-voice/audiod/internal/logging"
)

func newBackend() (Platform, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoPlatform{
		ctx:    malgoCtx,
		logger: logging.GetLogger("platform"),
	}, nil
}

// malgoPlatform implements Platform on top of the miniaudio bindings.
type malgoPlatform struct {
	ctx    *malgo.AllocatedContext
	logger logging.Logger
	mu     sync.Mutex
	closed bool
}

func malgoType(typ DeviceType) malgo.DeviceType {
	if typ == DeviceTypePlayback {
		return malgo.Playback
	}
	return malgo.Capture
}

// toMalgoDeviceID converts our string device ID back to a malgo device id.
func toMalgoDeviceID(id string) malgo.DeviceID {
	var res malgo.DeviceID
	copy(res[:], id)
	return res
}

var emptyDeviceID malgo.DeviceID

// ListDevices enumerates current devices of the given type.
func (p *malgoPlatform) ListDevices(typ DeviceType) ([]RawDevice, error) {
	infos, err := p.ctx.Devices(malgoType(typ))
	if err != nil {
		return nil, err
	}

	res := make([]RawDevice, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		full, err := p.ctx.DeviceInfo(malgoType(typ), info.ID, malgo.Shared)
		if err != nil {
			p.logger.Warn("Unable to get audio device info", "error", err)
			continue
		}

		// Some backends report the same endpoint twice.
		id := string(append([]byte(nil), full.ID[:]...))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		res = append(res, RawDevice{
			ID:         id,
			Name:       full.Name(),
			IsDefault:  full.IsDefault == 1,
			SampleRate: float64(full.MaxSampleRate),
		})
	}
	return res, nil
}

// DefaultDevice returns the device the OS marks as default.
func (p *malgoPlatform) DefaultDevice(typ DeviceType) (RawDevice, error) {
	devices, err := p.ListDevices(typ)
	if err != nil {
		return RawDevice{}, err
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	return RawDevice{}, ErrNoDevice
}

// SubscribeDefaultChange is not available through the miniaudio bindings;
// the polling watcher carries default-change detection on this backend.
func (p *malgoPlatform) SubscribeDefaultChange(DeviceType, func()) error {
	return ErrNotSupported
}

// OpenStream opens a raw stream on the given device, or on the system
// default when deviceID is empty.
func (p *malgoPlatform) OpenStream(typ DeviceType, deviceID string, cfg StreamConfig) (Stream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgoType(typ))
	if cfg.SampleRate != 0 {
		deviceConfig.SampleRate = cfg.SampleRate
	}
	if cfg.BlockSize != 0 {
		deviceConfig.PeriodSizeInFrames = cfg.BlockSize
	}

	id := toMalgoDeviceID(deviceID)
	channels := cfg.Channels
	if channels == 0 {
		channels = 1
	}
	switch typ {
	case DeviceTypePlayback:
		if id != emptyDeviceID {
			deviceConfig.Playback.DeviceID = id.Pointer()
		}
		deviceConfig.Playback.Format = malgo.FormatS16
		deviceConfig.Playback.Channels = channels
	default:
		if id != emptyDeviceID {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = channels
	}
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{}
	if cfg.OnData != nil {
		callbacks.Data = malgo.DataProc(cfg.OnData)
	}

	dev, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, classifyMalgoError(err)
	}
	return &malgoStream{dev: dev}, nil
}

// Close releases the platform context.
func (p *malgoPlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.ctx.Uninit(); err != nil {
		return err
	}
	p.ctx.Free()
	return nil
}

// malgoStream wraps one initialized malgo device.
type malgoStream struct {
	dev *malgo.Device
}

func (s *malgoStream) Start() error {
	return classifyMalgoError(s.dev.Start())
}

func (s *malgoStream) Stop() error {
	return classifyMalgoError(s.dev.Stop())
}

func (s *malgoStream) Close() error {
	s.dev.Uninit()
	return nil
}

// classifyMalgoError maps miniaudio result strings onto our sentinels. The
// bindings surface C result codes as opaque error strings, so this is a
// substring match on the two codes we retry on.
func classifyMalgoError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return ErrDeviceBusy
	case strings.Contains(msg, "invalid args") || strings.Contains(msg, "invalid operation") || strings.Contains(msg, "format not supported"):
		return ErrInvalidConfig
	case strings.Contains(msg, "no device") || strings.Contains(msg, "does not exist"):
		return ErrNoDevice
	default:
		return err
	}
}
