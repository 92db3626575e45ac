package device

import (
	"sync"
	"testing"
)

func TestStateCacheEmpty(t *testing.T) {
	cache := NewStateCache()

	if _, ok := cache.Default(DirectionInput); ok {
		t.Error("empty cache must report no input default")
	}
	if _, ok := cache.Default(DirectionOutput); ok {
		t.Error("empty cache must report no output default")
	}
}

func TestStateCacheMonotonicIdentity(t *testing.T) {
	cache := NewStateCache()
	builtin := Descriptor{UID: "builtin-in", Name: "Built-in", Direction: DirectionInput}
	airpods := Descriptor{UID: "airpods-1", Name: "AirPods", Direction: DirectionInput}

	if !cache.UpdateDefault(DirectionInput, builtin) {
		t.Error("first observation must report a change")
	}
	if cache.UpdateDefault(DirectionInput, builtin) {
		t.Error("repeating the same descriptor must not report a change")
	}
	if !cache.UpdateDefault(DirectionInput, airpods) {
		t.Error("new UID must report a change")
	}
	if cache.UpdateDefault(DirectionInput, airpods) {
		t.Error("redundant refresh must not report a change")
	}

	got, ok := cache.Default(DirectionInput)
	if !ok || got.UID != "airpods-1" {
		t.Errorf("Default = %+v, ok=%v", got, ok)
	}
}

func TestStateCacheDirectionsIndependent(t *testing.T) {
	cache := NewStateCache()

	cache.UpdateDefault(DirectionInput, Descriptor{UID: "mic", Direction: DirectionInput})

	if _, ok := cache.Default(DirectionOutput); ok {
		t.Error("output slot must stay empty after input update")
	}
}

func TestStateCacheConcurrentReaders(t *testing.T) {
	cache := NewStateCache()
	cache.UpdateDefault(DirectionOutput, Descriptor{UID: "a", Direction: DirectionOutput})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must always observe a fully formed descriptor.
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if d, ok := cache.Default(DirectionOutput); ok {
					if d.UID != "a" && d.UID != "b" {
						t.Errorf("observed partial descriptor: %+v", d)
						return
					}
				}
			}
		}()
	}

	for i := range 1000 {
		uid := "a"
		if i%2 == 1 {
			uid = "b"
		}
		cache.UpdateDefault(DirectionOutput, Descriptor{UID: uid, Direction: DirectionOutput})
	}
	close(stop)
	wg.Wait()
}
