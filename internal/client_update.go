package internal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const clientHelp = "/users list who is here • /ls [dir] browse files • /upload <path> share a file • /logout forget the saved login • /quit leave"

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		// Ctrl+C always bails out, whatever the mode.
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeConn("client quit")
			return model, tea.Quit
		}
		switch model.mode {
		case modeAuthMenu:
			return model.updateAuthMenu(typedMessage)
		case modeAuthUsername, modeAuthPassword:
			return model.updateAuthPrompt(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		}

	case authResultMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.addNotice(typedMessage.err.Error())
			model.enterAuthMenu()
			return model, nil
		}
		model.username = typedMessage.username
		model.token = typedMessage.token
		if err := saveSessionToDisk(model.sessionPath, sessionFile{Username: model.username, Token: model.token}); err != nil {
			model.addNotice(fmt.Sprintf("Could not save login: %v", err))
		}
		model.enterChat()
		return model, model.connectCmd()

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		return model, readOnceCmd(typedMessage.conn)

	case incomingMsg:
		if typedMessage.Type != "" {
			model.applyEnvelope(ChatEnvelope(typedMessage))
		}
		if model.websocketConn == nil {
			return model, nil
		}
		return model, readOnceCmd(model.websocketConn)

	case disconnectedMsg:
		if typedMessage.conn != model.websocketConn {
			// a connection we already replaced or closed
			return model, nil
		}
		model.isConnected = false
		model.websocketConn = nil
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if errors.Is(typedMessage.err, errUnauthorized) {
			// the cached token expired or the secret rotated
			_ = deleteSessionFile(model.sessionPath)
			model.token = ""
			model.addNotice("Your session expired, please log in again.")
			model.enterAuthMenu()
			return model, nil
		}
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case sendFailedMsg:
		model.addNotice(fmt.Sprintf("Send failed: %v", typedMessage.err))
		return model, nil

	case uploadResultMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.addNotice(fmt.Sprintf("Upload of %s failed: %v", typedMessage.path, typedMessage.err))
			return model, nil
		}
		model.addNotice(fmt.Sprintf("Uploaded %s (%s)", typedMessage.path, formatFileSize(typedMessage.response.Size)))
		share := ChatEnvelope{
			Type: EnvelopeFile,
			Text: filepath.Base(typedMessage.path),
			URL:  typedMessage.response.URL,
			Mime: typedMessage.response.Mime,
		}
		return model, model.sendCmd(share)
	}
	return model, nil
}

func (model *TUIModel) updateAuthMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "1", "l", "L":
		model.authIntent = authIntentLogin
		return model, model.enterPrompt(modeAuthUsername)
	case "2", "s", "S":
		model.authIntent = authIntentSignup
		return model, model.enterPrompt(modeAuthUsername)
	case "q", "Q", "esc":
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) updateAuthPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.enterAuthMenu()
		return model, nil
	case tea.KeyEnter:
		value := model.textInput.Value()
		if strings.TrimSpace(value) == "" {
			return model, nil
		}
		if model.mode == modeAuthUsername {
			model.pendingUser = strings.TrimSpace(value)
			return model, model.enterPrompt(modeAuthPassword)
		}
		// passwords go out verbatim
		model.textInput.SetValue("")
		model.loading = true
		return model, model.authCmd(model.authIntent, model.pendingUser, value)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEsc {
		model.closeConn("client quit")
		return model, tea.Quit
	}
	if key.Type != tea.KeyEnter {
		var cmd tea.Cmd
		model.textInput, cmd = model.textInput.Update(key)
		return model, cmd
	}

	trimmed := strings.TrimSpace(model.textInput.Value())
	model.textInput.SetValue("")
	if trimmed == "" {
		return model, nil
	}
	if strings.HasPrefix(trimmed, "/") {
		return model.runCommand(trimmed)
	}
	if !model.isConnected {
		model.addNotice("Not connected yet, message not sent.")
		return model, nil
	}
	return model, model.sendCmd(ChatEnvelope{Type: EnvelopeText, Text: trimmed})
}

func (model *TUIModel) runCommand(line string) (tea.Model, tea.Cmd) {
	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)
	switch strings.ToLower(command) {
	case "/quit", "/exit":
		model.closeConn("client quit")
		return model, tea.Quit
	case "/users":
		if len(model.users) == 0 {
			model.addNotice("Nobody else is here yet.")
		} else {
			model.addNotice("In " + model.room + ": " + strings.Join(model.users, ", "))
		}
	case "/upload":
		if argument == "" {
			model.addNotice("Usage: /upload <path>")
			return model, nil
		}
		model.loading = true
		return model, model.uploadCmd(argument)
	case "/ls":
		dir := argument
		if dir == "" {
			dir = defaultBrowsePath()
		}
		items, err := browseDirectory(dir)
		if err != nil {
			model.addNotice(fmt.Sprintf("Cannot list %s: %v", dir, err))
			return model, nil
		}
		if len(items) == 0 {
			model.addNotice(dir + " is empty.")
			return model, nil
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, describeFileItem(item))
		}
		model.addNotice(dir + ": " + strings.Join(lines, ", "))
	case "/logout":
		_ = deleteSessionFile(model.sessionPath)
		model.closeConn("logout")
		model.token = ""
		model.users = nil
		model.enterAuthMenu()
	case "/help":
		model.addNotice(clientHelp)
	default:
		model.addNotice(fmt.Sprintf("Unknown command %s. %s", command, clientHelp))
	}
	return model, nil
}
