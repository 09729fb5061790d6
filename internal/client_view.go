package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	presenceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	attachmentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Underline(true)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

// how many log lines the chat pane shows
const visibleMessages = 30

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthPassword:
		return model.renderAuthPromptView()
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("RoomRelay")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Join room %q from your terminal", model.room))

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	hint := "Enter your username"
	if model.mode == modeAuthPassword {
		hint = fmt.Sprintf("Enter the password for %s", model.pendingUser)
	}

	viewSections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint + "  (Esc to go back)")}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatView() string {
	headerSegments := []string{
		"RoomRelay",
		fmt.Sprintf("Room %s", model.room),
		fmt.Sprintf("User %s", model.username),
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	present := "nobody here yet"
	if len(model.users) > 0 {
		present = fmt.Sprintf("%d here: %s", len(model.users), strings.Join(model.users, ", "))
	}

	var statusLine string
	switch {
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	case model.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error() + " (retrying)")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}
	if model.loading {
		statusLine = lipgloss.JoinHorizontal(lipgloss.Left, statusLine, connectingStyle.Render("  uploading…"))
	}

	start := 0
	if len(model.messages) > visibleMessages {
		start = len(model.messages) - visibleMessages
	}
	var messageLines []string
	for _, envelope := range model.messages[start:] {
		messageLines = append(messageLines, model.renderEnvelope(envelope))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	sections := []string{header, presenceStyle.Render(present), statusLine}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections,
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("Esc or /quit to leave • /help for commands"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func (model *TUIModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(model.notices))
	for _, notice := range model.notices {
		lines = append(lines, systemMessageStyle.Render(notice))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderEnvelope renders a single log line. Attachments show their URL,
// and multi-line text is indented so it stays legible.
func (model *TUIModel) renderEnvelope(envelope ChatEnvelope) string {
	stamp := time.Now()
	if envelope.Ts > 0 {
		stamp = time.Unix(envelope.Ts, 0)
	}
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", stamp.Format("15:04:05")))

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(envelope.Name))
	if envelope.Name == model.username {
		nameStyle = activeUserStyle
	}
	name := nameStyle.Render(envelope.Name)

	var body string
	switch {
	case envelope.URL != "":
		label := envelope.Text
		if label == "" {
			label = envelope.Mime
		}
		body = lipgloss.JoinHorizontal(lipgloss.Left, messageBodyStyle.Render("shared "+label+" "), attachmentStyle.Render(envelope.URL))
	case envelope.Type != EnvelopeText && envelope.Type != EnvelopeChat && envelope.Text == "":
		body = systemMessageStyle.Render(fmt.Sprintf("<%s>", envelope.Type))
	default:
		body = messageBodyStyle.Render(strings.ReplaceAll(envelope.Text, "\n", "\n   "))
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
