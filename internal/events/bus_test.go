package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceChangedEvent, 1)

	unsub := bus.Subscribe(func(e DeviceChangedEvent) {
		received <- e
	})
	defer unsub()

	event := DeviceChangedEvent{
		Direction:  "input",
		CurrentUID: "airpods-1",
		Source:     "notification",
	}
	bus.Publish(event)

	got := <-received
	if got.CurrentUID != event.CurrentUID {
		t.Errorf("Expected current_uid %s, got %s", event.CurrentUID, got.CurrentUID)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan StreamSwitchedEvent, 1)
	received2 := make(chan StreamSwitchedEvent, 1)

	unsub1 := bus.Subscribe(func(e StreamSwitchedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e StreamSwitchedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(StreamSwitchedEvent{Direction: "output", FromUID: "a", ToUID: "b"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamErrorEvent, 1)

	unsub := bus.Subscribe(func(e StreamErrorEvent) {
		received <- e
	})

	bus.Publish(StreamErrorEvent{Direction: "input", Kind: "no_device"})
	<-received

	unsub()

	bus.Publish(StreamErrorEvent{Direction: "input", Kind: "timeout"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	deviceReceived := make(chan bool, 1)
	streamReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ DeviceChangedEvent) {
		deviceReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StreamStateChangedEvent) {
		streamReceived <- true
	})
	defer unsub2()

	bus.Publish(DeviceChangedEvent{Direction: "input", CurrentUID: "x"})
	<-deviceReceived

	select {
	case <-streamReceived:
		t.Fatal("Stream subscriber should NOT have received DeviceChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceChangedEvent{
					Direction:  "output",
					CurrentUID: "builtin-out",
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[DeviceChangedEvent](bus, ch)
	defer unsub()

	event := DeviceChangedEvent{Direction: "input", CurrentUID: "airpods-1"}
	bus.Publish(event)

	received := <-ch
	deviceEvent, ok := received.(DeviceChangedEvent)
	if !ok {
		t.Fatalf("Expected DeviceChangedEvent, got %T", received)
	}
	if deviceEvent.CurrentUID != event.CurrentUID {
		t.Errorf("Expected current_uid %s, got %s", event.CurrentUID, deviceEvent.CurrentUID)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[StreamStateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(StreamStateChangedEvent{Direction: "input", State: "active"})
		done <- true
	}()

	<-done // Should complete without blocking
}
