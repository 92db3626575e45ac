package device

import "sync"

// StateCache is the process-wide latest-known-value store for the current
// default input and output descriptors. Writes are linearized per slot;
// readers never observe a partial descriptor.
type StateCache struct {
	mu    sync.RWMutex
	slots map[Direction]*Descriptor
}

// NewStateCache creates an empty cache; both slots start unset.
func NewStateCache() *StateCache {
	return &StateCache{slots: make(map[Direction]*Descriptor)}
}

// Default returns the last known default for a direction, or ok=false if
// none has been observed yet. Never blocks on I/O.
func (c *StateCache) Default(direction Direction) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d := c.slots[direction]; d != nil {
		return *d, true
	}
	return Descriptor{}, false
}

// UpdateDefault atomically replaces the slot for the descriptor's
// direction. It returns true iff the new descriptor's UID differs from the
// cached one; that return value is the sole signal other components use to
// decide whether a ChangeEvent should be emitted. Redundant refreshes
// return false.
func (c *StateCache) UpdateDefault(direction Direction, descriptor Descriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.slots[direction]
	copied := descriptor
	c.slots[direction] = &copied

	return prev == nil || prev.UID != descriptor.UID
}
