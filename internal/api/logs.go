package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/nexy-voice/audiod/internal/api/models"
	"github.com/nexy-voice/audiod/internal/logging"
)

// LogsInput is the query input for the logs endpoint.
type LogsInput struct {
	Limit int `query:"limit" default:"250" minimum:"1" maximum:"1000" doc:"Maximum number of entries to return"`
}

// registerLogRoutes registers the log history endpoint.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get the most recent log entries from the in-memory history buffer",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogsInput) (*models.LogsResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.History(); buffer != nil {
			entries = buffer.ReadAll()
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}

		out := make([]models.LogEntry, len(entries))
		for i, entry := range entries {
			out[i] = models.LogEntry{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: out, Count: len(out)},
		}, nil
	})
}
