package client

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

const sendTimeout = 5 * time.Second

func (a *App) handleSubmit(value string) tea.Cmd {
	if strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		return a.executeCommand(value)
	}
	return a.sendChatMessage(value)
}

func (a *App) executeCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}

	prefix := string(a.cfg.CommandPrefix)
	cmd := "/" + strings.TrimPrefix(fields[0], prefix)
	var result tea.Cmd

	switch cmd {
	case "/connect":
		target := a.serverAddr
		if len(fields) > 1 {
			target = fields[1]
		}
		if target == "" {
			a.logErrorf("Provide a server address to connect")
			break
		}
		result = a.connectToServer(target)
	case "/online", "/offline":
		if len(fields) < 2 {
			a.logErrorf("Usage: %s%s <username>", prefix, strings.TrimPrefix(cmd, "/"))
			break
		}
		if !a.isConnected() {
			a.logErrorf("Not connected. Use %sconnect first.", prefix)
			break
		}
		kind := protocol.MessageTypeGoOnline
		if cmd == "/offline" {
			kind = protocol.MessageTypeGoOffline
		}
		result = a.announcePresence(kind, fields[1])
	case "/to":
		if len(fields) < 2 {
			if t := a.currentTarget(); t != "" {
				a.logf("Sending to %s", t)
			} else {
				a.logErrorf("Usage: %sto <username>", prefix)
			}
			break
		}
		a.target = fields[1]
		a.logf("Sending to %s", a.target)
	case "/chat":
		a.view = viewChat
		a.logf("Switched to CHAT view")
	case "/users":
		a.view = viewUsers
		a.logf("Switched to USERS view")
	case "/help":
		a.view = viewHelp
		a.logf("Switched to HELP view")
	case "/pipe":
		if len(fields) > 1 && strings.EqualFold(fields[1], "clear") {
			a.pipeHistory = make([]pipeEntry, 0, pipeHistoryLimit)
			a.logf("Cleared pipe history")
			break
		}
		a.view = viewPipe
		a.logf("Switched to PIPE view")
	case "/quit":
		a.logf("Exiting client")
		if a.session != nil {
			_ = a.session.Close()
			a.session = nil
		}
		a.connected = false
		result = tea.Quit
	default:
		a.logErrorf("Command %s not implemented", fields[0])
	}

	a.updateViewportContent()
	return result
}

func (a *App) connectToServer(target string) tea.Cmd {
	a.resetSession()

	session := NewSession(target)
	a.session = session
	a.serverAddr = target
	a.logf("Connecting to %s ...", target)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		err := session.Connect(ctx)
		return connectResultMsg{session: session, address: target, err: err}
	}
}

func (a *App) announcePresence(kind protocol.MessageType, username string) tea.Cmd {
	a.username = username
	a.partner = ""
	if kind == protocol.MessageTypeGoOnline {
		a.pool = "online"
		a.logf("Going online as %s ...", username)
	} else {
		a.pool = "offline"
		a.logf("Going offline as %s ...", username)
	}
	env := protocol.Envelope{
		ID:      uuid.NewString(),
		Type:    kind,
		Payload: username,
	}
	return a.sendEnvelope(a.session, env, string(kind))
}

func (a *App) currentTarget() string {
	if a.target != "" {
		return a.target
	}
	return a.partner
}

func (a *App) sendChatMessage(content string) tea.Cmd {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if !a.isConnected() {
		a.logErrorf("Not connected. Use %sconnect first.", string(a.cfg.CommandPrefix))
		return nil
	}
	if a.username == "" {
		a.logErrorf("Pick a name first with %sonline or %soffline", string(a.cfg.CommandPrefix), string(a.cfg.CommandPrefix))
		return nil
	}
	receiver := a.currentTarget()
	if receiver == "" {
		a.logErrorf("No recipient. Wait for a match or use %sto <username>", string(a.cfg.CommandPrefix))
		return nil
	}
	if a.view != viewChat && a.view != viewPipe {
		a.view = viewChat
		a.updateViewportContent()
	}

	env := protocol.Envelope{
		ID:   uuid.NewString(),
		Type: protocol.MessageTypeSendMessage,
		Payload: protocol.SendMessageRequest{
			Sender:   a.username,
			Receiver: receiver,
			Message:  content,
		},
	}
	a.logf("Sending message to %s ...", receiver)
	return a.sendEnvelope(a.session, env, "chat message")
}

func (a *App) sendEnvelope(session *Session, env protocol.Envelope, description string) tea.Cmd {
	if session == nil {
		return nil
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	a.appendPipeEntry(pipeDirectionOut, env)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		err := session.Send(ctx, env)
		return sendResultMsg{
			session:     session,
			id:          env.ID,
			description: description,
			err:         err,
		}
	}
}

func defaultCommands() []commandSpec {
	return []commandSpec{
		{trigger: "/connect", usage: "/connect [addr]", description: "Connect to the server"},
		{trigger: "/online", usage: "/online <username>", description: "Join the online pool"},
		{trigger: "/offline", usage: "/offline <username>", description: "Join the offline pool"},
		{trigger: "/to", usage: "/to <username>", description: "Pick who plain text is sent to"},
		{trigger: "/chat", usage: "/chat", description: "Switch to chat view"},
		{trigger: "/users", usage: "/users", description: "List online users"},
		{trigger: "/pipe", usage: "/pipe [clear]", description: "Inspect transport JSON frames"},
		{trigger: "/help", usage: "/help", description: "Show command help"},
		{trigger: "/quit", usage: "/quit", description: "Exit the client"},
	}
}
