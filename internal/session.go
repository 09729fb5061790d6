package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoined
	StateLeft
)

func (state SessionState) String() string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	}
	return fmt.Sprintf("SessionState(%d)", int32(state))
}

// ErrRoomClosed ends a session whose room channel was shut down.
var ErrRoomClosed = errors.New("room closed")

// SessionConfig carries the already verified identity of a connection.
type SessionConfig struct {
	UserID        string
	Name          string
	Room          string
	ReplayHistory bool
	Logger        zerolog.Logger
	// Now stamps inbound envelopes; defaults to time.Now.
	Now func() time.Time
}

// Session runs the join / relay / leave protocol for one client.
type Session struct {
	hub       *Hub
	transport Transport
	cfg       SessionConfig
	state     atomic.Int32
	logger    zerolog.Logger
}

type inboundFrame struct {
	kind    FrameKind
	payload []byte
	err     error
}

func NewSession(hub *Hub, transport Transport, cfg SessionConfig) *Session {
	if cfg.Room == "" {
		cfg.Room = DefaultRoom
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		hub:       hub,
		transport: transport,
		cfg:       cfg,
		logger:    cfg.Logger.With().Str("room", cfg.Room).Str("user_id", cfg.UserID).Logger(),
	}
}

// State reports the current lifecycle state.
func (session *Session) State() SessionState {
	return SessionState(session.state.Load())
}

// Run blocks until the client goes away, the room shuts down or ctx is
// cancelled. Leave runs exactly once on every exit path once joined, and the
// transport is always closed. A clean client close returns nil.
func (session *Session) Run(ctx context.Context) error {
	defer session.transport.Close()
	defer session.state.Store(int32(StateLeft))

	room := session.hub.GetOrCreate(session.cfg.Room)
	subscription := room.Subscribe()
	defer subscription.Close()

	session.hub.Join(room, Member{UserID: session.cfg.UserID, Name: session.cfg.Name})
	defer session.hub.Leave(room, session.cfg.UserID)
	session.state.Store(int32(StateJoined))
	session.logger.Debug().Str("name", session.cfg.Name).Msg("joined")

	if session.cfg.ReplayHistory {
		for _, envelope := range session.hub.ReplayHistory(room) {
			if err := session.transport.Send(envelope); err != nil {
				return fmt.Errorf("replay history: %w", err)
			}
		}
	}

	err := session.relay(ctx, room, subscription)
	session.logger.Debug().Err(err).Msg("left")
	return err
}

// relay races the next client frame against the next room envelope until one
// side fails.
func (session *Session) relay(ctx context.Context, room *Room, subscription *Subscription) error {
	inbound := make(chan inboundFrame)
	done := make(chan struct{})
	readerExited := make(chan struct{})
	go session.readFrames(inbound, done, readerExited)
	defer func() {
		close(done)
		// unblocks a reader parked in ReceiveNext
		_ = session.transport.Close()
		<-readerExited
	}()

	for {
		select {
		case frame := <-inbound:
			if frame.err != nil {
				if errors.Is(frame.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("receive: %w", frame.err)
			}
			if frame.kind != FrameText {
				continue
			}
			envelope := StampEnvelope(frame.payload, session.cfg.Name, session.cfg.Now())
			session.hub.RecordAndBroadcast(room, envelope)
		case envelope, ok := <-subscription.C:
			if !ok {
				return ErrRoomClosed
			}
			if err := session.transport.Send(envelope); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (session *Session) readFrames(inbound chan<- inboundFrame, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	for {
		kind, payload, err := session.transport.ReceiveNext()
		select {
		case inbound <- inboundFrame{kind: kind, payload: payload, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
