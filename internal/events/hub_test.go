package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestHubRingKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(CommandQueued, map[string]int{"n": i})
	}
	snap := h.SnapshotSince(0)
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	if snap[0].ID != 3 || snap[2].ID != 5 {
		t.Fatalf("unexpected ids: %d..%d", snap[0].ID, snap[2].ID)
	}
	if got := h.SnapshotSince(4); len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("SnapshotSince(4) = %+v", got)
	}
}

func TestHubSubscribeFiltersByPrefix(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe("session.")
	defer cancel()

	h.Publish(CommandQueued, nil)
	h.Publish(SessionStarted, map[string]any{"generation": 1})

	select {
	case ev := <-ch:
		if ev.Type != SessionStarted {
			t.Fatalf("got %s, want %s", ev.Type, SessionStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %s", ev.Type)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", h.Subscribers())
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers = %d after cancel", h.Subscribers())
	}
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	h.Publish(CommandQueued, nil)
}

func TestSSERoundTrip(t *testing.T) {
	h := NewHub(4)
	h.Publish(CommandSucceeded, map[string]string{"command": "test_connection"})
	h.Publish(SessionStopped, nil)

	var buf bytes.Buffer
	for _, ev := range h.SnapshotSince(0) {
		if err := WriteSSE(&buf, ev); err != nil {
			t.Fatalf("WriteSSE: %v", err)
		}
	}
	buf.WriteString(": keep-alive\n\n")

	r := NewReader(strings.NewReader(buf.String()))
	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.ID != 1 || first.Type != CommandSucceeded {
		t.Fatalf("first = %+v", first)
	}
	var data map[string]string
	if err := json.Unmarshal(first.Data, &data); err != nil || data["command"] != "test_connection" {
		t.Fatalf("data = %s (%v)", first.Data, err)
	}

	second, err := r.Next()
	if err != nil || second.Type != SessionStopped {
		t.Fatalf("second = %+v, %v", second, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestParseLastEventID(t *testing.T) {
	cases := map[string]int64{"": 0, "12": 12, "-3": 0, "abc": 0}
	for in, want := range cases {
		if got := ParseLastEventID(in); got != want {
			t.Errorf("ParseLastEventID(%q) = %d, want %d", in, got, want)
		}
	}
}
