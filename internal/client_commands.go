package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type (
	connectedMsg    struct{ conn *websocket.Conn }
	incomingMsg     ChatEnvelope
	disconnectedMsg struct {
		conn *websocket.Conn
		err  error
	}
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	sendFailedMsg    struct{ err error }
	authResultMsg    struct {
		username string
		token    string
		err      error
	}
	uploadResultMsg struct {
		path     string
		response *uploadResponse
		err      error
	}
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) connectCmd() tea.Cmd {
	serverURL, room, token := model.serverURL, model.room, model.token
	return func() tea.Msg {
		joinURL, err := buildJoinURL(serverURL, room, token)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, resp, err := websocket.DefaultDialer.Dial(joinURL, http.Header{})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return connectFailedMsg{err: errUnauthorized}
			}
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// reads a single frame; Update chains the next read after handling it
func readOnceCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return disconnectedMsg{conn: conn, err: err}
		}
		if messageType != websocket.TextMessage {
			return incomingMsg{}
		}
		envelope, err := DecodeEnvelope(payload)
		if err != nil {
			return incomingMsg(ChatEnvelope{Type: EnvelopeText, Name: "server", Text: string(payload), Ts: time.Now().Unix()})
		}
		return incomingMsg(envelope)
	}
}

func (model *TUIModel) sendCmd(envelope ChatEnvelope) tea.Cmd {
	conn, writeMutex := model.websocketConn, model.writeMutex
	return func() tea.Msg {
		if conn == nil {
			return sendFailedMsg{err: errors.New("websocket not connected")}
		}
		encoded, err := json.Marshal(envelope)
		if err != nil {
			return sendFailedMsg{err: err}
		}
		writeMutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, encoded)
		writeMutex.Unlock()
		if err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (model *TUIModel) authCmd(intent authIntent, username, password string) tea.Cmd {
	serverURL := model.serverURL
	return func() tea.Msg {
		baseURL, err := httpBaseFromJoinURL(serverURL)
		if err != nil {
			return authResultMsg{err: err}
		}
		if intent == authIntentSignup {
			if err := apiRegister(baseURL, username, password); err != nil {
				return authResultMsg{err: fmt.Errorf("sign up: %w", err)}
			}
		}
		resp, err := apiLogin(baseURL, username, password)
		if err != nil {
			return authResultMsg{err: fmt.Errorf("log in: %w", err)}
		}
		return authResultMsg{username: resp.Username, token: resp.Token}
	}
}

func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	serverURL, token, room := model.serverURL, model.token, model.room
	return func() tea.Msg {
		baseURL, err := httpBaseFromJoinURL(serverURL)
		if err != nil {
			return uploadResultMsg{path: path, err: err}
		}
		resp, err := apiUpload(baseURL, token, room, path)
		return uploadResultMsg{path: path, response: resp, err: err}
	}
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
	model.websocketConn = nil
	model.isConnected = false
}
