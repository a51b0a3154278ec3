package eventbus

import (
	"testing"
	"time"

	"pkt.systems/quilix/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("win1")
	defer cancel()

	event := schema.TabEvent{WindowID: "win1", Type: schema.TabEventCreated, ActiveTab: "tab1"}
	bus.OnTabEvent(event)

	select {
	case got := <-ch:
		if got.Type != schema.TabEventCreated || got.ActiveTab != "tab1" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestEventsStayInTheirWindow(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("win1")
	defer cancel()
	bus.OnTabEvent(schema.TabEvent{WindowID: "win2", Type: schema.TabEventCreated})
	select {
	case got := <-ch:
		t.Fatalf("unexpected event from other window: %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("win1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	ch, cancel := bus.Subscribe("win1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.OnTabEvent(schema.TabEvent{WindowID: "win1", Type: schema.TabEventUpdated})
		bus.OnTabEvent(schema.TabEvent{WindowID: "win1", Type: schema.TabEventUpdated})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(ch))
	}
}
