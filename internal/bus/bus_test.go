package bus

import (
	"testing"
	"time"
)

func TestEmitSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Emit(KindStatusChanged, "READY")

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStatusChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp the event")
		}
		if evt.Payload != "READY" {
			t.Errorf("payload = %v, want READY", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	b.Emit(KindStatusChanged, nil)
	b.Emit(KindMessage, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindMessage {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessage)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub()

	b.Emit(KindQR, "code")

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullBufferDropsAndCounts(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 1)
	defer unsub()

	b.Emit("session.one", nil)
	b.Emit("session.two", nil)

	evt := <-ch
	if evt.Kind != "session.one" {
		t.Errorf("got %q, want session.one", evt.Kind)
	}
	if got := b.Dropped("session."); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}
