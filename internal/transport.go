package internal

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameKind classifies an inbound frame.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FrameOther
)

// Transport is the duplex text-frame connection a session runs over.
// ReceiveNext returns io.EOF once the peer has closed the connection.
type Transport interface {
	ReceiveNext() (FrameKind, []byte, error)
	Send(text []byte) error
	Close() error
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// wsTransport adapts a gorilla websocket connection. Reads happen on the
// session's reader goroutine and writes on the session goroutine; pings go
// through WriteControl, which gorilla allows concurrently with both.
type wsTransport struct {
	conn      *websocket.Conn
	stopPing  chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	transport := &wsTransport{conn: conn, stopPing: make(chan struct{})}
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go transport.keepAlive()
	return transport
}

func (transport *wsTransport) ReceiveNext() (FrameKind, []byte, error) {
	messageType, payload, err := transport.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return FrameOther, nil, io.EOF
		}
		return FrameOther, nil, err
	}
	switch messageType {
	case websocket.TextMessage:
		return FrameText, payload, nil
	case websocket.BinaryMessage:
		return FrameBinary, payload, nil
	default:
		return FrameOther, payload, nil
	}
}

func (transport *wsTransport) Send(text []byte) error {
	_ = transport.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return transport.conn.WriteMessage(websocket.TextMessage, text)
}

func (transport *wsTransport) Close() error {
	var err error
	transport.closeOnce.Do(func() {
		close(transport.stopPing)
		_ = transport.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = transport.conn.Close()
	})
	return err
}

func (transport *wsTransport) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-transport.stopPing:
			return
		case <-ticker.C:
			if err := transport.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
