package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexy-voice/audiod/internal/logging"
	"github.com/nexy-voice/audiod/internal/platform"
)

// DefaultPollInterval was chosen empirically: fast enough to pick up a
// Bluetooth headset connection quickly, slow enough to avoid excessive
// wakeups.
const DefaultPollInterval = 2 * time.Second

// PollingWatcher is the permanent polling fallback for default-device
// changes. It always runs, not only when notifications fail: push
// notifications are unreliable at process startup and after OS audio
// daemon restarts, so this redundancy is deliberate. Do not remove it as
// an optimization.
type PollingWatcher struct {
	platform platform.Platform
	cache    *StateCache
	manager  *Manager
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOptions configures a PollingWatcher.
type PollerOptions struct {
	Platform platform.Platform
	Cache    *StateCache
	Manager  *Manager
	// Interval overrides DefaultPollInterval; useful in tests.
	Interval time.Duration
}

// NewPollingWatcher creates a watcher that routes detected mismatches
// through the manager's ingest path, so notification-sourced and
// polling-sourced changes share dedup and debounce.
func NewPollingWatcher(opts PollerOptions) *PollingWatcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingWatcher{
		platform: opts.Platform,
		cache:    opts.Cache,
		manager:  opts.Manager,
		logger:   logging.GetLogger("device"),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins ticking. The first poll runs immediately so the cache is
// primed at startup without waiting a full interval.
func (w *PollingWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)

		w.tick()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("Polling watcher stopped")
				return
			case <-ticker.C:
				w.tick()
			}
		}
	}()
}

// Stop terminates the watcher and waits for the loop to exit.
func (w *PollingWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}

// tick polls both directions once. A failed read is logged and skipped;
// one bad tick must never stop the ticker.
func (w *PollingWatcher) tick() {
	for _, direction := range Directions {
		raw, err := w.platform.DefaultDevice(direction.DeviceType())
		if err != nil {
			w.logger.Debug("Polling tick failed", "direction", direction, "error", err)
			continue
		}

		cached, ok := w.cache.Default(direction)
		if ok && cached.UID == raw.ID {
			continue
		}

		// Mismatch against the cache: synthesize a change signal. The
		// manager re-validates against the cache, so a notification for
		// the same change that arrived concurrently wins and this one is
		// discarded as redundant.
		w.manager.Ingest(direction, raw, SourcePolling)
	}
}
