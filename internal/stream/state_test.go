package stream

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateOpening, true},
		{StateOpening, StateActive, true},
		{StateOpening, StateErrorRetrying, true},
		{StateOpening, StateIdle, true},
		{StateErrorRetrying, StateOpening, true},
		{StateErrorRetrying, StateIdle, true},
		{StateActive, StateClosing, true},
		{StateClosing, StateIdle, true},

		{StateIdle, StateActive, false},
		{StateIdle, StateClosing, false},
		{StateActive, StateOpening, false},
		{StateActive, StateIdle, false},
		{StateClosing, StateOpening, false},
		{StateErrorRetrying, StateActive, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}
