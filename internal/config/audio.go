package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// StreamTuning holds the per-direction stream tunables from the [audio.input]
// and [audio.output] sections. Zero values mean "keep the built-in default".
type StreamTuning struct {
	MaxOpenAttempts        int `toml:"max_open_attempts"`
	RetryBackoffBaseMs     int `toml:"retry_backoff_base_ms"`
	RetryBackoffCapMs      int `toml:"retry_backoff_cap_ms"`
	SettleDelayMs          int `toml:"settle_delay_ms"`
	BluetoothSettleDelayMs int `toml:"bluetooth_settle_delay_ms"`
}

// AudioConfig is the [audio] section of the config file: detection and
// switching tunables that can be reloaded live without a daemon restart.
type AudioConfig struct {
	DebounceMs     int          `toml:"debounce_ms"`
	PollIntervalMs int          `toml:"poll_interval_ms"`
	Input          StreamTuning `toml:"input"`
	Output         StreamTuning `toml:"output"`
}

// Debounce returns the configured debounce window, or fallback when unset.
func (c AudioConfig) Debounce(fallback time.Duration) time.Duration {
	return msOr(c.DebounceMs, fallback)
}

// PollInterval returns the configured polling interval, or fallback when
// unset.
func (c AudioConfig) PollInterval(fallback time.Duration) time.Duration {
	return msOr(c.PollIntervalMs, fallback)
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// LoadAudioConfig reads the [audio] section from a TOML config file. A
// missing file or missing section yields a zero AudioConfig so callers fall
// back to built-in defaults. Suitable as a Watcher loader.
func LoadAudioConfig(path string) (AudioConfig, error) {
	if path == "" {
		return AudioConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return AudioConfig{}, nil
		}
		return AudioConfig{}, err
	}

	var raw struct {
		Audio AudioConfig `toml:"audio"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return AudioConfig{}, fmt.Errorf("failed to parse audio config: %w", err)
	}
	return raw.Audio, nil
}
