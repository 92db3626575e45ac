package stream

import "time"

// Policy holds the tunable timing and retry parameters of a stream
// manager. The source documents disagree on exact retry counts, so these
// are configuration, not invariants; defaults below are the documented
// working values.
type Policy struct {
	// MaxOpenAttempts bounds retries of a stream open on transient
	// platform errors.
	MaxOpenAttempts int

	// RetryBackoffBase is the delay after the first failed attempt; each
	// further attempt waits attempt*base, capped at RetryBackoffCap.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// SettleDelay is the pause between closing a stream and opening the
	// next one on wired/built-in devices.
	SettleDelay time.Duration

	// BluetoothSettleDelay replaces SettleDelay for Bluetooth targets;
	// Bluetooth audio stacks need longer to release and reacquire the
	// hardware path.
	BluetoothSettleDelay time.Duration

	// CacheFallbackAttempts bounds how often an open with no target
	// device re-checks the state cache before addressing the system
	// default directly.
	CacheFallbackAttempts int
	CacheFallbackDelay    time.Duration

	// OpTimeout bounds the total duration of one public operation,
	// including all retries and settle delays.
	OpTimeout time.Duration
}

// DefaultInputPolicy returns the documented defaults for the capture
// direction. Input retries harder than output: a dead microphone mid
// push-to-talk is the worst failure mode this subsystem has.
func DefaultInputPolicy() Policy {
	return Policy{
		MaxOpenAttempts:       7,
		RetryBackoffBase:      250 * time.Millisecond,
		RetryBackoffCap:       3 * time.Second,
		SettleDelay:           300 * time.Millisecond,
		BluetoothSettleDelay:  2500 * time.Millisecond,
		CacheFallbackAttempts: 3,
		CacheFallbackDelay:    200 * time.Millisecond,
		OpTimeout:             30 * time.Second,
	}
}

// DefaultOutputPolicy returns the documented defaults for the playback
// direction.
func DefaultOutputPolicy() Policy {
	p := DefaultInputPolicy()
	p.MaxOpenAttempts = 5
	return p
}

// Backoff returns the delay before retry attempt n (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * p.RetryBackoffBase
	if d > p.RetryBackoffCap {
		return p.RetryBackoffCap
	}
	return d
}

// Settle returns the close-to-reopen settle delay for a device class.
func (p Policy) Settle(bluetooth bool) time.Duration {
	if bluetooth {
		return p.BluetoothSettleDelay
	}
	return p.SettleDelay
}
