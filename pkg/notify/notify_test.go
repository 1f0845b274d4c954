package notify

import (
	"testing"
)

func TestBroadcastFanOut(t *testing.T) {
	h := NewHub(4)
	id1, ch1 := h.Register()
	id2, ch2 := h.Register()
	defer h.Unregister(id1)
	defer h.Unregister(id2)

	if h.Size() != 2 {
		t.Fatalf("Expected 2 listeners, got %d", h.Size())
	}

	h.Notify(NewNotice(LevelWarn, "no_speech", "No speech was detected."))

	for i, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		if ev.Type != TypeNotice || ev.Notice == nil || ev.Notice.Code != "no_speech" {
			t.Errorf("listener %d: unexpected event %+v", i, ev)
		}
		if ev.Notice.ID == "" || ev.Notice.At.IsZero() {
			t.Errorf("listener %d: notice missing id or time", i)
		}
	}
}

func TestNotifyFillsMissingFields(t *testing.T) {
	h := NewHub(1)
	id, ch := h.Register()
	defer h.Unregister(id)

	h.Notify(Notice{Level: LevelInfo, Code: "x"})
	ev := <-ch
	if ev.Notice.ID == "" || ev.Notice.At.IsZero() {
		t.Errorf("Expected id and timestamp to be filled, got %+v", ev.Notice)
	}
}

func TestSlowListenerDrops(t *testing.T) {
	h := NewHub(1)
	slowID, slow := h.Register()
	fastID, fast := h.Register()
	defer h.Unregister(slowID)
	defer h.Unregister(fastID)

	h.Publish(TypeFeed, "first")
	<-fast
	h.Publish(TypeFeed, "second")

	if ev := <-fast; ev.Data != "second" {
		t.Errorf("Fast listener expected second event, got %+v", ev)
	}
	if ev := <-slow; ev.Data != "first" {
		t.Errorf("Slow listener expected first event, got %+v", ev)
	}
	select {
	case ev := <-slow:
		t.Errorf("Slow listener should have dropped the second event, got %+v", ev)
	default:
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := NewHub(0)
	id, ch := h.Register()
	h.Unregister(id)
	h.Unregister(id)

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}
	if h.Size() != 0 {
		t.Errorf("Expected no listeners, got %d", h.Size())
	}
}
