package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fenggwsx/PairChat/internal/config"
	"github.com/fenggwsx/PairChat/internal/protocol"
)

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg        config.ClientConfig
	session    *Session
	serverAddr string
	connected  bool

	username string
	pool     string
	partner  string
	target   string
	online   []string

	chatHistory []string
	pipeHistory []pipeEntry

	view     viewMode
	input    textinput.Model
	viewport viewport.Model
	helper   help.Model
	styles   styleSet
	commands []commandSpec

	width      int
	height     int
	showHelp   bool
	helpView   string
	helpHeight int
	logLine    logLine
}

type viewMode int

const (
	viewChat viewMode = iota
	viewUsers
	viewPipe
	viewHelp
)

func (v viewMode) String() string {
	switch v {
	case viewUsers:
		return "users"
	case viewPipe:
		return "pipe"
	case viewHelp:
		return "help"
	default:
		return "chat"
	}
}

type logLevel int

const (
	logLevelInfo logLevel = iota
	logLevelError
)

type logLine struct {
	level logLevel
	label string
	body  string
}

type styleSet struct {
	title         lipgloss.Style
	view          lipgloss.Style
	statusOnline  lipgloss.Style
	statusOffline lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	logLabel      lipgloss.Style
	logBody       lipgloss.Style
	logLabelError lipgloss.Style
	logBodyError  lipgloss.Style
	help          lipgloss.Style
	self          lipgloss.Style
}

type commandSpec struct {
	trigger     string
	usage       string
	description string
}

type pipeDirection string

const (
	pipeDirectionIn  pipeDirection = "IN"
	pipeDirectionOut pipeDirection = "OUT"

	pipeHistoryLimit = 200
)

type pipeEntry struct {
	direction   pipeDirection
	messageType string
	timestamp   time.Time
	body        string
}

type connectResultMsg struct {
	session *Session
	address string
	err     error
}

type sessionEnvelopeMsg struct {
	session  *Session
	envelope protocol.Envelope
}

type sessionClosedMsg struct {
	session *Session
}

type sendResultMsg struct {
	session     *Session
	id          string
	description string
	err         error
}

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) *App {
	if cfg.CommandPrefix == 0 {
		cfg.CommandPrefix = '/'
	}

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type /help for commands"
	input.CharLimit = 4096
	input.Focus()

	app := &App{
		cfg:        cfg,
		serverAddr: cfg.ServerAddr,
		view:       viewChat,
		input:      input,
		viewport:   viewport.New(0, 0),
		helper:     help.New(),
		styles:     buildStyles(),
		commands:   defaultCommands(),
	}
	app.logf("Use /connect to reach %s", cfg.ServerAddr)
	app.updateViewportContent()
	return app
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles user input and session events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.updateInputWidth()
		a.updateHelp()
		a.updateViewportSize()
		a.updateViewportContent()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case connectResultMsg:
		return a, a.handleConnectResult(m)
	case sessionEnvelopeMsg:
		if m.session != a.session {
			return a, nil
		}
		cmd := a.handleSessionEnvelope(m.envelope)
		return a, tea.Batch(cmd, a.listenForSession())
	case sessionClosedMsg:
		if m.session != a.session {
			return a, nil
		}
		a.resetSession()
		a.logErrorf("Connection closed")
		return a, nil
	case sendResultMsg:
		if m.err != nil && m.session == a.session {
			a.logErrorf("Failed to send %s: %v", m.description, m.err)
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if a.session != nil {
			_ = a.session.Close()
		}
		return a, tea.Quit
	case tea.KeyEnter:
		value := strings.TrimSpace(a.input.Value())
		a.input.Reset()
		a.updateHelp()
		a.updateViewportSize()
		if value == "" {
			return a, nil
		}
		return a, a.handleSubmit(value)
	case tea.KeyTab:
		a.handleTabCompletion()
		a.updateHelp()
		a.updateViewportSize()
		return a, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.updateHelp()
	a.updateViewportSize()
	return a, cmd
}

func (a *App) handleConnectResult(msg connectResultMsg) tea.Cmd {
	if msg.session != a.session {
		if msg.session != nil {
			_ = msg.session.Close()
		}
		return nil
	}
	if msg.err != nil {
		a.resetSession()
		a.logErrorf("Connection to %s failed: %v", msg.address, msg.err)
		return nil
	}
	a.connected = true
	a.logf("Connected to %s. Use /online <name> or /offline <name>.", msg.address)
	return a.listenForSession()
}

func (a *App) listenForSession() tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		env, ok := <-session.Messages()
		if !ok {
			return sessionClosedMsg{session: session}
		}
		return sessionEnvelopeMsg{session: session, envelope: env}
	}
}

func (a *App) isConnected() bool {
	return a.session != nil && a.connected
}

func (a *App) resetSession() {
	if a.session != nil {
		_ = a.session.Close()
	}
	a.session = nil
	a.connected = false
	a.pool = ""
	a.partner = ""
	a.online = nil
}

func (a *App) logf(format string, args ...interface{}) {
	a.logLine = logLine{level: logLevelInfo, label: "INFO", body: fmt.Sprintf(format, args...)}
}

func (a *App) logErrorf(format string, args ...interface{}) {
	a.logLine = logLine{level: logLevelError, label: "ERROR", body: fmt.Sprintf(format, args...)}
}
