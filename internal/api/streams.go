package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/nexy-voice/audiod/internal/api/models"
	"github.com/nexy-voice/audiod/internal/device"
)

// registerStreamRoutes registers the stream status endpoint.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "Stream Status",
		Description: "Get the lifecycle state, bound device and session of both stream directions",
		Tags:        []string{"streams"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StreamStatusResponse, error) {
		statuses := make([]models.StreamStatus, 0, len(device.Directions))
		for _, direction := range device.Directions {
			status := models.StreamStatus{
				Direction: string(direction),
				State:     string(s.coordinator.State(direction)),
				SessionID: s.coordinator.Session(direction),
			}
			if bound, ok := s.coordinator.CurrentDevice(direction); ok {
				status.DeviceUID = bound.UID
				status.DeviceName = bound.Name
				status.Bluetooth = bound.IsBluetooth
			}
			statuses = append(statuses, status)
		}
		return &models.StreamStatusResponse{
			Body: models.StreamStatusData{Streams: statuses},
		}, nil
	})
}
