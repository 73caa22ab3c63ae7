package notify

import (
	"testing"
	"time"
)

func TestAnnounceReachesAllListeners(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	want := Announcement{Event: EventNewAnalysis, Scope: "global", At: time.Now()}
	h.Announce(want)

	for _, l := range []*Listener{a, b} {
		select {
		case got := <-l.C():
			if got.Event != EventNewAnalysis || got.Scope != "global" {
				t.Fatalf("unexpected announcement: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("listener never received announcement")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	l := h.Subscribe()
	h.Unsubscribe(l)

	if _, ok := <-l.C(); ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	if h.Count() != 0 {
		t.Fatalf("Count = %d after Unsubscribe, want 0", h.Count())
	}
	// Double unsubscribe must be a no-op, not a double close.
	h.Unsubscribe(l)
}

func TestStalledListenerIsDropped(t *testing.T) {
	h := NewHub()
	stalled := h.Subscribe()
	healthy := h.Subscribe()
	defer h.Unsubscribe(healthy)

	// Fill the stalled listener's buffer, then one more to trip the drop.
	// The healthy listener is drained each round so it never backs up.
	for i := 0; i < 9; i++ {
		h.Announce(Announcement{Event: EventNewAnalysis, Scope: "global"})
		select {
		case <-healthy.C():
		case <-time.After(time.Second):
			t.Fatal("healthy listener starved")
		}
	}

	if h.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after dropping stalled listener", h.Count())
	}

	// Drain: buffered messages first, then a closed channel.
	n := 0
	for range stalled.C() {
		n++
	}
	if n != 8 {
		t.Fatalf("stalled listener drained %d messages, want 8", n)
	}
}
