package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/nexy-voice/audiod/cmd"
	"github.com/nexy-voice/audiod/internal/api"
	"github.com/nexy-voice/audiod/internal/config"
	"github.com/nexy-voice/audiod/internal/coordinator"
	"github.com/nexy-voice/audiod/internal/device"
	"github.com/nexy-voice/audiod/internal/events"
	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/platform"
	"github.com/nexy-voice/audiod/internal/stream"
	"github.com/nexy-voice/audiod/internal/telemetry"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8970" toml:"server.port" env:"SERVER_PORT"`

	// Audio settings; the [audio] config section can override these and the
	// per-direction stream tunables live, without a restart.
	AudioDebounceMs     int `help:"Device change debounce window in milliseconds" default:"300" toml:"audio.debounce_ms" env:"AUDIO_DEBOUNCE_MS"`
	AudioPollIntervalMs int `help:"Default device polling interval in milliseconds" default:"2000" toml:"audio.poll_interval_ms" env:"AUDIO_POLL_INTERVAL_MS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevice      string `help:"Device layer logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingStream      string `help:"Stream layer logging level" default:"info" toml:"logging.stream" env:"LOGGING_STREAM"`
	LoggingCoordinator string `help:"Coordinator logging level" default:"info" toml:"logging.coordinator" env:"LOGGING_COORDINATOR"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// tunedPolicy overlays non-zero config values onto a base policy.
func tunedPolicy(base stream.Policy, t config.StreamTuning) stream.Policy {
	if t.MaxOpenAttempts > 0 {
		base.MaxOpenAttempts = t.MaxOpenAttempts
	}
	if t.RetryBackoffBaseMs > 0 {
		base.RetryBackoffBase = time.Duration(t.RetryBackoffBaseMs) * time.Millisecond
	}
	if t.RetryBackoffCapMs > 0 {
		base.RetryBackoffCap = time.Duration(t.RetryBackoffCapMs) * time.Millisecond
	}
	if t.SettleDelayMs > 0 {
		base.SettleDelay = time.Duration(t.SettleDelayMs) * time.Millisecond
	}
	if t.BluetoothSettleDelayMs > 0 {
		base.BluetoothSettleDelay = time.Duration(t.BluetoothSettleDelayMs) * time.Millisecond
	}
	return base
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"device":      opts.LoggingDevice,
				"stream":      opts.LoggingStream,
				"coordinator": opts.LoggingCoordinator,
				"api":         opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		audioCfg, cfgErr := config.LoadAudioConfig(opts.Config)
		if cfgErr != nil {
			logger.Warn("Failed to load audio tunables, using defaults", "error", cfgErr)
		}

		eventBus := events.New()
		recorder := telemetry.New()

		audioPlatform, platErr := platform.New()
		if platErr != nil {
			logger.Error("Failed to initialize audio platform", "error", platErr)
			os.Exit(1)
		}

		cache := device.NewStateCache()

		deviceManager := device.NewManager(device.ManagerOptions{
			Platform:  audioPlatform,
			Cache:     cache,
			EventBus:  eventBus,
			Telemetry: recorder,
			Debounce:  audioCfg.Debounce(time.Duration(opts.AudioDebounceMs) * time.Millisecond),
		})

		poller := device.NewPollingWatcher(device.PollerOptions{
			Platform: audioPlatform,
			Cache:    cache,
			Manager:  deviceManager,
			Interval: audioCfg.PollInterval(time.Duration(opts.AudioPollIntervalMs) * time.Millisecond),
		})

		inputPolicy := tunedPolicy(stream.DefaultInputPolicy(), audioCfg.Input)
		outputPolicy := tunedPolicy(stream.DefaultOutputPolicy(), audioCfg.Output)

		inputStream := stream.NewManager(stream.ManagerOptions{
			Direction: device.DirectionInput,
			Platform:  audioPlatform,
			Cache:     cache,
			EventBus:  eventBus,
			Telemetry: recorder,
			Policy:    &inputPolicy,
		})
		outputStream := stream.NewManager(stream.ManagerOptions{
			Direction: device.DirectionOutput,
			Platform:  audioPlatform,
			Cache:     cache,
			EventBus:  eventBus,
			Telemetry: recorder,
			Policy:    &outputPolicy,
		})

		coord := coordinator.New(coordinator.Options{
			DeviceManager: deviceManager,
			Input:         inputStream,
			Output:        outputStream,
			EventBus:      eventBus,
			Telemetry:     recorder,
		})

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			EventBus:          eventBus,
			Coordinator:       coord,
			Cache:             cache,
			Platform:          audioPlatform,
			PrometheusHandler: recorder.Handler(),
		})

		// Stream tunables follow config file edits live; debounce and poll
		// interval stay fixed for the process lifetime.
		watcher := config.NewConfigWatcher(opts.Config, config.LoadAudioConfig, logging.GetLogger("config"))
		watcher.OnReload(func(cfg config.AudioConfig) {
			logger.Info("Audio tunables reloaded")
			inputStream.SetPolicy(tunedPolicy(stream.DefaultInputPolicy(), cfg.Input))
			outputStream.SetPolicy(tunedPolicy(stream.DefaultOutputPolicy(), cfg.Output))
		})

		hooks.OnStart(func() {
			ctx := context.Background()

			deviceManager.Start(ctx)
			poller.Start(ctx)
			inputStream.Start(ctx)
			outputStream.Start(ctx)
			coord.Start()

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher unavailable, tunables fixed until restart", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "addr", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			coord.Stop()
			inputStream.Stop()
			outputStream.Stop()
			poller.Stop()
			deviceManager.Stop()

			if closeErr := audioPlatform.Close(); closeErr != nil {
				logger.Warn("Error closing audio platform", "error", closeErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	cli.Run()
}
