// Package models holds the request and response shapes of the HTTP API.
package models

// HealthData is the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Human-readable status message"`
}

// HealthResponse wraps the health check payload.
type HealthResponse struct {
	Body HealthData
}

// VersionData is the build metadata payload.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-08-01T10:00:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"ci-8841" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"darwin/arm64" doc:"Build platform"`
}

// VersionResponse wraps the version payload.
type VersionResponse struct {
	Body VersionData
}

// LogEntry is one log line returned by the logs endpoint.
type LogEntry struct {
	Timestamp  string         `json:"timestamp" example:"2026-08-01T10:00:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"device" doc:"Originating module"`
	Message    string         `json:"message" example:"Default device changed" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// LogsData is the logs payload.
type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Most recent log entries, oldest first"`
	Count   int        `json:"count" example:"250" doc:"Number of entries returned"`
}

// LogsResponse wraps the logs payload.
type LogsResponse struct {
	Body LogsData
}
