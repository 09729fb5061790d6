package internal

import (
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const maxClientMessages = 500

// ClientOptions configures the terminal client.
type ClientOptions struct {
	ServerURL string
	Room      string
	Username  string
	Token     string
	// SessionPath caches the login token between runs; empty disables it.
	SessionPath string
}

// tui model struct for all the components and modes
type TUIModel struct {
	textInput       textinput.Model
	messages        []ChatEnvelope
	notices         []string
	users           []string
	serverURL       string
	room            string
	username        string
	token           string
	sessionPath     string
	pendingUser     string
	websocketConn   *websocket.Conn
	writeMutex      *sync.Mutex
	isConnected     bool
	connectionError error
	mode            appMode
	authIntent      authIntent
	loading         bool
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthPassword
	modeChat
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

func NewTUIModel(opts ClientOptions) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0

	room := opts.Room
	if room == "" {
		room = DefaultRoom
	}
	model := &TUIModel{
		textInput:   input,
		messages:    make([]ChatEnvelope, 0, 64),
		serverURL:   opts.ServerURL,
		room:        room,
		username:    opts.Username,
		token:       opts.Token,
		sessionPath: opts.SessionPath,
		writeMutex:  &sync.Mutex{},
	}
	if model.token == "" {
		if saved, err := loadSessionFromDisk(model.sessionPath); err == nil {
			model.token = saved.Token
			model.username = saved.Username
		}
	}
	if model.token != "" {
		model.enterChat()
	} else {
		model.enterAuthMenu()
	}
	return model
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return nil
}

func (model *TUIModel) enterAuthMenu() {
	model.mode = modeAuthMenu
	model.textInput.Blur()
	model.textInput.SetValue("")
	model.textInput.Prompt = ""
	model.textInput.Placeholder = ""
	model.textInput.EchoMode = textinput.EchoNormal
}

func (model *TUIModel) enterPrompt(mode appMode) tea.Cmd {
	model.mode = mode
	model.textInput.SetValue("")
	if mode == modeAuthPassword {
		model.textInput.Prompt = "password> "
		model.textInput.Placeholder = ""
		model.textInput.EchoMode = textinput.EchoPassword
	} else {
		model.textInput.Prompt = "username> "
		model.textInput.Placeholder = "Enter your username…"
		model.textInput.EchoMode = textinput.EchoNormal
		model.textInput.SetValue(model.username)
	}
	return model.textInput.Focus()
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.textInput.SetValue("")
	model.textInput.Prompt = "> "
	model.textInput.Placeholder = "Type a message…  (/help for commands)"
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Focus()
}

func (model *TUIModel) addNotice(text string) {
	model.notices = append(model.notices, text)
	if len(model.notices) > 5 {
		model.notices = model.notices[len(model.notices)-5:]
	}
}

// applyEnvelope folds a relayed envelope into the model: presence snapshots
// replace the user list, everything else is appended to the log.
func (model *TUIModel) applyEnvelope(envelope ChatEnvelope) {
	if envelope.Type == EnvelopeUsers {
		model.users = append([]string(nil), envelope.List...)
		return
	}
	model.messages = append(model.messages, envelope)
	if len(model.messages) > maxClientMessages {
		model.messages = model.messages[len(model.messages)-maxClientMessages:]
	}
}

// RunClient is the bubbletea entry point.
func RunClient(opts ClientOptions) error {
	if opts.SessionPath == "" {
		opts.SessionPath = defaultSessionPath()
	}
	model := NewTUIModel(opts)
	program := tea.NewProgram(model)
	_, err := program.Run()
	model.closeConn("client quit")
	return err
}
