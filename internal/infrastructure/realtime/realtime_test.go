package realtime

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/identity"
)

// fakeSink records text frames written by the connection's write loop.
type fakeSink struct {
	frames chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{frames: make(chan []byte, 256)}
}

func (s *fakeSink) WriteMessage(messageType int, data []byte) error {
	if messageType == websocket.TextMessage {
		s.frames <- append([]byte(nil), data...)
	}
	return nil
}

func (s *fakeSink) WriteControl(int, []byte, time.Time) error { return nil }
func (s *fakeSink) SetWriteDeadline(time.Time) error          { return nil }

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (s *fakeSink) none(t *testing.T) {
	t.Helper()
	select {
	case f := <-s.frames:
		t.Fatalf("unexpected frame: %s", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConn(participantID, role string) (*Connection, *fakeSink) {
	sink := newFakeSink()
	conn := NewConnection(identity.Identity{ParticipantID: participantID, Role: role}, sink)
	conn.Start()
	return conn, sink
}

func TestRoomsJoinIsIdempotent(t *testing.T) {
	rooms := NewRooms(nil)
	conn, sink := testConn("patient-1", identity.RolePatient)

	rooms.Join("conv-1", conn)
	rooms.Join("conv-1", conn)

	if got := rooms.MemberCount("conv-1"); got != 1 {
		t.Fatalf("MemberCount = %d, want 1", got)
	}
	if n := rooms.Broadcast("conv-1", []byte("hello"), ""); n != 1 {
		t.Fatalf("Broadcast delivered to %d connections, want 1", n)
	}
	sink.next(t)
	sink.none(t)
}

func TestRoomsBroadcastExcludesConnection(t *testing.T) {
	rooms := NewRooms(nil)
	sender, senderSink := testConn("patient-1", identity.RolePatient)
	peerA, sinkA := testConn("staff-1", identity.RoleStaff)
	peerB, sinkB := testConn("staff-2", identity.RoleStaff)

	rooms.Join("conv-1", sender)
	rooms.Join("conv-1", peerA)
	rooms.Join("conv-1", peerB)

	if n := rooms.Broadcast("conv-1", []byte("typing"), sender.ID); n != 2 {
		t.Fatalf("Broadcast delivered to %d connections, want 2", n)
	}
	sinkA.next(t)
	sinkB.next(t)
	senderSink.none(t)

	// Empty exclusion reaches everyone, sender included.
	if n := rooms.Broadcast("conv-1", []byte("msg"), ""); n != 3 {
		t.Fatalf("Broadcast delivered to %d connections, want 3", n)
	}
	senderSink.next(t)
}

func TestRoomsBroadcastPreservesOrder(t *testing.T) {
	rooms := NewRooms(nil)
	conn, sink := testConn("patient-1", identity.RolePatient)
	rooms.Join("conv-1", conn)

	for i := 0; i < 10; i++ {
		rooms.Broadcast("conv-1", []byte(fmt.Sprintf("msg-%d", i)), "")
	}
	for i := 0; i < 10; i++ {
		want := []byte(fmt.Sprintf("msg-%d", i))
		if got := sink.next(t); !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %s, want %s", i, got, want)
		}
	}
}

func TestRoomsLeave(t *testing.T) {
	rooms := NewRooms(nil)
	conn, sink := testConn("patient-1", identity.RolePatient)

	// Leaving rooms that do not exist, or were never joined, is a no-op.
	rooms.Leave("ghost", conn.ID)
	rooms.Leave("conv-1", "unknown-conn")

	rooms.Join("conv-1", conn)
	rooms.Leave("conv-1", conn.ID)

	if rooms.Contains("conv-1", conn.ID) {
		t.Fatal("connection still a member after Leave")
	}
	if got := rooms.MemberCount("conv-1"); got != 0 {
		t.Fatalf("MemberCount = %d, want 0", got)
	}
	rooms.Broadcast("conv-1", []byte("after"), "")
	sink.none(t)
}

func TestRoomsJoinRequiresConversation(t *testing.T) {
	rooms := NewRooms(nil)
	conn, _ := testConn("patient-1", identity.RolePatient)

	rooms.Join("", conn)
	rooms.Join("conv-1", nil)

	if got := rooms.MemberCount(""); got != 0 {
		t.Fatalf("empty conversation got %d members", got)
	}
	if got := rooms.MemberCount("conv-1"); got != 0 {
		t.Fatalf("nil connection joined: %d members", got)
	}
}

func TestRegistryDetachCleansEverything(t *testing.T) {
	rooms := NewRooms(nil)
	reg := NewRegistry(rooms, nil, quietLogger())

	stay, staySink := testConnAttached(t, reg, "staff-1", identity.RoleStaff)
	gone, goneSink := testConnAttached(t, reg, "patient-1", identity.RolePatient)
	rooms.Join("conv-1", stay)
	rooms.Join("conv-1", gone)

	reg.Detach(gone.ID)

	if reg.Get(gone.ID) != nil {
		t.Fatal("detached connection still registered")
	}
	if rooms.Contains("conv-1", gone.ID) {
		t.Fatal("detached connection still in room")
	}
	if !gone.Closed() {
		t.Fatal("detached connection not closed")
	}
	if !goneSink.isClosed() {
		t.Fatal("socket not closed on detach")
	}

	if n := rooms.Broadcast("conv-1", []byte("still here"), ""); n != 1 {
		t.Fatalf("Broadcast reached %d connections, want 1", n)
	}
	staySink.next(t)

	// Second detach of the same id is a no-op.
	reg.Detach(gone.ID)
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestRegistryTracksMultipleConnectionsPerParticipant(t *testing.T) {
	rooms := NewRooms(nil)
	reg := NewRegistry(rooms, nil, quietLogger())

	_, sink1 := testConnAttached(t, reg, "patient-1", identity.RolePatient)
	conn2, sink2 := testConnAttached(t, reg, "patient-1", identity.RolePatient)

	if got := reg.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if n := reg.NotifyParticipant("patient-1", []byte("ping")); n != 2 {
		t.Fatalf("NotifyParticipant reached %d, want 2", n)
	}
	sink1.next(t)
	sink2.next(t)

	reg.Detach(conn2.ID)
	if n := reg.NotifyParticipant("patient-1", []byte("ping")); n != 1 {
		t.Fatalf("after detach NotifyParticipant reached %d, want 1", n)
	}
	sink1.next(t)
}

func TestRegistryClose(t *testing.T) {
	rooms := NewRooms(nil)
	reg := NewRegistry(rooms, nil, quietLogger())

	conn, _ := testConnAttached(t, reg, "patient-1", identity.RolePatient)
	rooms.Join("conv-1", conn)

	reg.Close()

	if got := reg.Len(); got != 0 {
		t.Fatalf("Len = %d after Close, want 0", got)
	}
	if !conn.Closed() {
		t.Fatal("connection survived registry Close")
	}
	if rooms.Contains("conv-1", conn.ID) {
		t.Fatal("room membership survived registry Close")
	}
}

func TestConnectionSendAfterClose(t *testing.T) {
	conn, _ := testConn("patient-1", identity.RolePatient)
	conn.Close(1000, "bye")

	if !conn.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	if err := conn.Send([]byte("late")); err == nil {
		t.Fatal("Send after Close did not error")
	}
}

func TestConnectionSlowConsumerIsDropped(t *testing.T) {
	// No Start(): nothing drains the buffer, so filling it simulates a
	// consumer that stopped reading.
	sink := newFakeSink()
	conn := NewConnection(identity.Identity{ParticipantID: "patient-1", Role: identity.RolePatient}, sink)

	var err error
	for i := 0; i < 256 && err == nil; i++ {
		err = conn.Send([]byte("x"))
	}
	if err == nil {
		t.Fatal("Send never failed with a full buffer")
	}
	if !conn.Closed() {
		t.Fatal("slow connection was not closed")
	}
}

func testConnAttached(t *testing.T, reg *Registry, participantID, role string) (*Connection, *fakeSink) {
	t.Helper()
	sink := newFakeSink()
	conn := NewConnection(identity.Identity{ParticipantID: participantID, Role: role}, sink)
	reg.Attach(conn)
	return conn, sink
}
