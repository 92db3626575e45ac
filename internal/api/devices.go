package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/nexy-voice/audiod/internal/api/models"
	"github.com/nexy-voice/audiod/internal/device"
)

// registerDeviceRoutes registers the device inventory endpoints.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all audio devices the platform currently reports, both directions",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		devices := make([]models.DeviceInfo, 0, 8)
		for _, direction := range device.Directions {
			raws, err := s.platform.ListDevices(direction.DeviceType())
			if err != nil {
				s.logger.Warn("Device enumeration failed", "direction", direction, "error", err)
				return nil, huma.Error500InternalServerError("device enumeration failed", err)
			}
			for _, raw := range raws {
				d := device.NewDescriptor(raw, direction)
				devices = append(devices, deviceInfo(d, raw.IsDefault))
			}
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: devices},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-default-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices/defaults",
		Summary:     "Default Devices",
		Description: "Get the cached default device per direction, as observed by the change manager",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.DefaultDevicesResponse, error) {
		var data models.DefaultDevicesData
		if d, ok := s.cache.Default(device.DirectionInput); ok {
			info := deviceInfo(d, true)
			data.Input = &info
		}
		if d, ok := s.cache.Default(device.DirectionOutput); ok {
			info := deviceInfo(d, true)
			data.Output = &info
		}
		return &models.DefaultDevicesResponse{Body: data}, nil
	})
}

func deviceInfo(d device.Descriptor, isDefault bool) models.DeviceInfo {
	return models.DeviceInfo{
		UID:        d.UID,
		Name:       d.Name,
		Direction:  string(d.Direction),
		SampleRate: int(d.SampleRate),
		Bluetooth:  d.IsBluetooth,
		Default:    isDefault,
	}
}
