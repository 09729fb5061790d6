package internal

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type inboundTestFrame struct {
	kind    FrameKind
	payload []byte
}

// fakeTransport is an in-memory Transport. Frames pushed with deliver are
// returned by ReceiveNext; Send records outbound envelopes.
type fakeTransport struct {
	inbound   chan inboundTestFrame
	sent      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan inboundTestFrame, 16),
		sent:    make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

func (transport *fakeTransport) deliver(kind FrameKind, payload string) {
	transport.inbound <- inboundTestFrame{kind: kind, payload: []byte(payload)}
}

// hangUp makes ReceiveNext report a clean peer close.
func (transport *fakeTransport) hangUp() {
	close(transport.inbound)
}

func (transport *fakeTransport) ReceiveNext() (FrameKind, []byte, error) {
	select {
	case frame, ok := <-transport.inbound:
		if !ok {
			return FrameOther, nil, io.EOF
		}
		return frame.kind, frame.payload, nil
	case <-transport.closed:
		return FrameOther, nil, io.EOF
	}
}

func (transport *fakeTransport) Send(text []byte) error {
	if transport.sendErr != nil {
		return transport.sendErr
	}
	transport.sent <- text
	return nil
}

func (transport *fakeTransport) Close() error {
	transport.closeOnce.Do(func() { close(transport.closed) })
	return nil
}

func (transport *fakeTransport) next(t *testing.T) ChatEnvelope {
	t.Helper()
	select {
	case payload := <-transport.sent:
		envelope, err := DecodeEnvelope(payload)
		if err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound envelope")
	}
	return ChatEnvelope{}
}

// nextOfType skips envelopes until one of kind arrives.
func (transport *fakeTransport) nextOfType(t *testing.T, kind string) ChatEnvelope {
	t.Helper()
	for {
		envelope := transport.next(t)
		if envelope.Type == kind {
			return envelope
		}
	}
}

type sessionRun struct {
	session *Session
	done    chan error
}

func startSession(hub *Hub, transport Transport, cfg SessionConfig) *sessionRun {
	cfg.Logger = zerolog.Nop()
	run := &sessionRun{session: NewSession(hub, transport, cfg), done: make(chan error, 1)}
	go func() { run.done <- run.session.Run(context.Background()) }()
	return run
}

func (run *sessionRun) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-run.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	return nil
}

func waitForPresence(t *testing.T, hub *Hub, room *Room, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Presence(room)) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members, have %d", want, len(hub.Presence(room)))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionRelaysBetweenMembers(t *testing.T) {
	hub := NewHub()
	ann, bob := newFakeTransport(), newFakeTransport()

	annRun := startSession(hub, ann, SessionConfig{UserID: "u1", Name: "ann"})
	waitForPresence(t, hub, hub.GetOrCreate(DefaultRoom), 1)
	bobRun := startSession(hub, bob, SessionConfig{UserID: "u2", Name: "bob"})
	waitForPresence(t, hub, hub.GetOrCreate(DefaultRoom), 2)

	presence := bob.nextOfType(t, EnvelopeUsers)
	if len(presence.List) != 2 || presence.List[0] != "ann" || presence.List[1] != "bob" {
		t.Fatalf("unexpected presence %v", presence.List)
	}

	ann.deliver(FrameText, `{"type":"text","text":"hello","name":"spoofed"}`)
	got := bob.nextOfType(t, EnvelopeText)
	if got.Name != "ann" || got.Text != "hello" {
		t.Fatalf("unexpected relay %+v", got)
	}
	if got.Ts == 0 {
		t.Fatal("expected a server timestamp")
	}
	if echo := ann.nextOfType(t, EnvelopeText); echo.Text != "hello" {
		t.Fatalf("sender should receive its own envelope, got %+v", echo)
	}

	bob.hangUp()
	if err := bobRun.wait(t); err != nil {
		t.Fatalf("clean close should return nil, got %v", err)
	}
	if bobRun.session.State() != StateLeft {
		t.Fatalf("expected left state, got %s", bobRun.session.State())
	}
	// ann already consumed both join snapshots while waiting for the echo
	after := ann.nextOfType(t, EnvelopeUsers)
	if len(after.List) != 1 || after.List[0] != "ann" {
		t.Fatalf("unexpected presence after leave %v", after.List)
	}

	ann.hangUp()
	if err := annRun.wait(t); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if members := hub.Presence(hub.GetOrCreate(DefaultRoom)); len(members) != 0 {
		t.Fatalf("expected empty room, got %v", members)
	}
}

func TestSessionIgnoresNonTextFrames(t *testing.T) {
	hub := NewHub()
	transport := newFakeTransport()
	run := startSession(hub, transport, SessionConfig{UserID: "u1", Name: "ann", Room: "bin"})

	transport.deliver(FrameBinary, "\x00\x01")
	transport.deliver(FrameText, "plain words")
	envelope := transport.nextOfType(t, EnvelopeText)
	if envelope.Text != "plain words" || envelope.Name != "ann" {
		t.Fatalf("malformed payload should be wrapped as text, got %+v", envelope)
	}
	transport.hangUp()
	if err := run.wait(t); err != nil {
		t.Fatal(err)
	}
	if history := hub.ReplayHistory(hub.GetOrCreate("bin")); len(history) != 1 {
		t.Fatalf("binary frame must not reach history, have %d entries", len(history))
	}
}

func TestSessionReplaysHistoryOnJoin(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("replay")
	hub.RecordAndBroadcast(room, []byte(`{"type":"text","name":"ann","text":"first","ts":1}`))
	hub.RecordAndBroadcast(room, []byte(`{"type":"text","name":"ann","text":"second","ts":2}`))

	transport := newFakeTransport()
	run := startSession(hub, transport, SessionConfig{UserID: "u2", Name: "bob", Room: "replay", ReplayHistory: true})

	if first := transport.nextOfType(t, EnvelopeText); first.Text != "first" {
		t.Fatalf("expected first, got %+v", first)
	}
	if second := transport.nextOfType(t, EnvelopeText); second.Text != "second" {
		t.Fatalf("expected second, got %+v", second)
	}
	transport.hangUp()
	if err := run.wait(t); err != nil {
		t.Fatal(err)
	}
}

func TestSessionLeavesWhenSendFails(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(DefaultRoom)
	transport := newFakeTransport()
	transport.sendErr = errors.New("broken pipe")

	run := startSession(hub, transport, SessionConfig{UserID: "u1", Name: "ann"})
	err := run.wait(t)
	if err == nil || !errors.Is(err, transport.sendErr) {
		t.Fatalf("expected send failure, got %v", err)
	}
	if members := hub.Presence(room); len(members) != 0 {
		t.Fatalf("failed session must leave, presence %v", members)
	}
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	hub := NewHub()
	transport := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(hub, transport, SessionConfig{UserID: "u1", Name: "ann", Logger: zerolog.Nop()})
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitForPresence(t, hub, hub.GetOrCreate(DefaultRoom), 1)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session ignored cancellation")
	}
	if len(hub.Presence(hub.GetOrCreate(DefaultRoom))) != 0 {
		t.Fatal("cancelled session must leave the room")
	}
}

func TestSessionEndsWhenRoomCloses(t *testing.T) {
	hub := NewHub()
	transport := newFakeTransport()
	run := startSession(hub, transport, SessionConfig{UserID: "u1", Name: "ann", Room: "shutdown"})
	waitForPresence(t, hub, hub.GetOrCreate("shutdown"), 1)

	hub.Close()
	if err := run.wait(t); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
}

func TestSessionStateString(t *testing.T) {
	if StateJoined.String() != "joined" || SessionState(9).String() != "SessionState(9)" {
		t.Fatal("unexpected state names")
	}
}
