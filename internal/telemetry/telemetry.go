// Package telemetry emits the application-wide observability surface:
// canonical decision log lines and Prometheus metrics.
//
// Decision lines follow the shape used across the rest of the application:
//
//	decision=<value> ctx={key=value, ...} source=<domain> duration_ms=<int>
package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexy-voice/audiod/internal/logging"
)

// Recorder is the process-wide telemetry sink.
type Recorder struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	deviceChanges  *prometheus.CounterVec
	streamSwitches *prometheus.CounterVec
	streamRetries  *prometheus.CounterVec
	streamErrors   *prometheus.CounterVec
	switchDuration *prometheus.HistogramVec
}

// New creates a Recorder with its own Prometheus registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		logger:   logging.GetLogger("telemetry"),
		registry: registry,
		deviceChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_device_changes_total",
			Help: "Default-device changes dispatched, by direction and detection source.",
		}, []string{"direction", "source"}),
		streamSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_switches_total",
			Help: "Completed stream device switches, by direction.",
		}, []string{"direction"}),
		streamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_open_retries_total",
			Help: "Retried stream opens after transient platform errors.",
		}, []string{"direction", "kind"}),
		streamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_errors_total",
			Help: "Terminal stream errors surfaced to coordinators.",
		}, []string{"direction", "kind"}),
		switchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiod_stream_switch_duration_seconds",
			Help:    "Close-to-reopen duration of stream device switches.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
		}, []string{"direction"}),
	}
}

// Handler returns the /metrics handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Decision emits one canonical decision line.
func (r *Recorder) Decision(decision, source string, ctx map[string]any, duration time.Duration) {
	r.logger.Info(FormatDecision(decision, source, ctx, duration))
}

// DeviceChange counts one dispatched default-device change.
func (r *Recorder) DeviceChange(direction, source string) {
	r.deviceChanges.WithLabelValues(direction, source).Inc()
}

// StreamSwitch records one completed device switch.
func (r *Recorder) StreamSwitch(direction string, duration time.Duration) {
	r.streamSwitches.WithLabelValues(direction).Inc()
	r.switchDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// StreamRetry counts one retried stream open.
func (r *Recorder) StreamRetry(direction, kind string) {
	r.streamRetries.WithLabelValues(direction, kind).Inc()
}

// StreamError counts one terminal stream error.
func (r *Recorder) StreamError(direction, kind string) {
	r.streamErrors.WithLabelValues(direction, kind).Inc()
}

// FormatDecision renders the canonical decision line. Context keys are
// sorted so the output is stable for log-based alerting.
func FormatDecision(decision, source string, ctx map[string]any, duration time.Duration) string {
	var sb strings.Builder
	sb.WriteString("decision=")
	sb.WriteString(decision)
	sb.WriteString(" ctx={")

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, ctx[k])
	}

	sb.WriteString("} source=")
	sb.WriteString(source)
	fmt.Fprintf(&sb, " duration_ms=%d", duration.Milliseconds())
	return sb.String()
}
