package relay

import (
	"encoding/json"
	"testing"
)

// fakeSub collects delivered frames. capacity limits how many frames Enqueue
// accepts before reporting a drop; 0 means unlimited.
type fakeSub struct {
	id       string
	capacity int
	frames   [][]byte
}

func newFakeSub(id string) *fakeSub {
	return &fakeSub{id: id}
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Enqueue(data []byte) bool {
	if f.capacity > 0 && len(f.frames) >= f.capacity {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSub) lastFrame(t *testing.T) Frame {
	t.Helper()
	if len(f.frames) == 0 {
		t.Fatal("expected at least one delivered frame")
	}
	var frame Frame
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &frame); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return frame
}

func TestJoinIdempotent(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sub := newFakeSub("conn-1")

	reg.Join(sub, "user-1")
	reg.Join(sub, "user-1")
	reg.Join(sub, "user-1")

	if got := reg.Members("user-1"); got != 1 {
		t.Fatalf("expected 1 member after repeated joins, got %d", got)
	}

	if n := reg.Deliver("user-1", EventNewMessage, json.RawMessage(`{"x":1}`)); n != 1 {
		t.Fatalf("expected delivery to 1 connection, got %d", n)
	}
	if len(sub.frames) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", len(sub.frames))
	}
}

func TestJoinEmptyUserID(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sub := newFakeSub("conn-1")

	reg.Join(sub, "")
	reg.Join(sub, "   ")

	if got := reg.Rooms(); got != 0 {
		t.Fatalf("expected 0 rooms after empty joins, got %d", got)
	}
}

func TestJoinTrimsWhitespace(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sub := newFakeSub("conn-1")

	reg.Join(sub, "  user-1  ")

	if got := reg.Members("user-1"); got != 1 {
		t.Fatalf("expected trimmed room to have 1 member, got %d", got)
	}
}

func TestDeliverToEmptyRoom(t *testing.T) {
	reg := NewRegistry(nil, nil)

	if n := reg.Deliver("nobody-home", EventNewMessage, json.RawMessage(`{}`)); n != 0 {
		t.Fatalf("expected 0 deliveries to empty room, got %d", n)
	}
	if n := reg.Deliver("", EventNewMessage, json.RawMessage(`{}`)); n != 0 {
		t.Fatalf("expected 0 deliveries to unnamed room, got %d", n)
	}
}

func TestDeliverMultipleConnections(t *testing.T) {
	reg := NewRegistry(nil, nil)
	a := newFakeSub("conn-a")
	b := newFakeSub("conn-b")

	reg.Join(a, "user-1")
	reg.Join(b, "user-1")

	payload := json.RawMessage(`{"content":"hi"}`)
	if n := reg.Deliver("user-1", EventNewMessage, payload); n != 2 {
		t.Fatalf("expected delivery to 2 connections, got %d", n)
	}

	for _, sub := range []*fakeSub{a, b} {
		frame := sub.lastFrame(t)
		if frame.Event != EventNewMessage {
			t.Errorf("%s: expected event %q, got %q", sub.id, EventNewMessage, frame.Event)
		}
		if string(frame.Payload) != string(payload) {
			t.Errorf("%s: payload not forwarded verbatim: got %s", sub.id, frame.Payload)
		}
	}
}

func TestDeliverDropsOnFullBuffer(t *testing.T) {
	reg := NewRegistry(nil, nil)
	slow := &fakeSub{id: "conn-slow", capacity: 1}
	fast := newFakeSub("conn-fast")

	reg.Join(slow, "user-1")
	reg.Join(fast, "user-1")

	reg.Deliver("user-1", EventNewMessage, json.RawMessage(`{"n":1}`))
	if n := reg.Deliver("user-1", EventNewMessage, json.RawMessage(`{"n":2}`)); n != 1 {
		t.Fatalf("expected 1 delivery with slow connection full, got %d", n)
	}

	if len(slow.frames) != 1 {
		t.Errorf("expected slow connection to keep 1 frame, got %d", len(slow.frames))
	}
	if len(fast.frames) != 2 {
		t.Errorf("expected fast connection to receive 2 frames, got %d", len(fast.frames))
	}
}

func TestLeave(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sub := newFakeSub("conn-1")

	reg.Join(sub, "user-1")
	reg.Leave(sub, "user-1")

	if got := reg.Rooms(); got != 0 {
		t.Fatalf("expected 0 rooms after leave, got %d", got)
	}

	// Leaving a room the connection never joined is harmless.
	reg.Leave(sub, "user-2")
}

func TestDisconnectRemovesFromAllRooms(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sub := newFakeSub("conn-1")
	other := newFakeSub("conn-2")

	reg.Join(sub, "user-1")
	reg.Join(sub, "user-2")
	reg.Join(other, "user-1")

	reg.Disconnect(sub)

	if got := reg.Members("user-1"); got != 1 {
		t.Errorf("expected user-1 to keep 1 member, got %d", got)
	}
	if got := reg.Members("user-2"); got != 0 {
		t.Errorf("expected user-2 to be empty, got %d", got)
	}

	// Disconnecting twice is a no-op.
	reg.Disconnect(sub)
	if got := reg.Rooms(); got != 1 {
		t.Fatalf("expected 1 room after disconnects, got %d", got)
	}
}
