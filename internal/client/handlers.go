package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

func (a *App) handleSessionEnvelope(env protocol.Envelope) tea.Cmd {
	a.appendPipeEntry(pipeDirectionIn, env)
	switch env.Type {
	case protocol.MessageTypeMatched:
		a.handleMatched(env)
	case protocol.MessageTypeUserList:
		a.handleUserList(env)
	case protocol.MessageTypeReceiveMessage:
		a.handleReceiveMessage(env)
	default:
		a.logErrorf("Received %s message", string(env.Type))
	}
	return nil
}

func (a *App) handleMatched(env protocol.Envelope) {
	var partner string
	if err := protocol.DecodePayload(env.Payload, &partner); err != nil {
		a.logErrorf("Failed to decode match: %v", err)
		return
	}
	partner = strings.TrimSpace(partner)
	if partner == "" {
		return
	}
	a.partner = partner
	if a.target == "" {
		a.logf("Matched with %s; plain text now goes to them", partner)
	} else {
		a.logf("Matched with %s; still sending to %s", partner, a.target)
	}
	a.appendChatLine(fmt.Sprintf("*** matched with %s", partner))
}

func (a *App) handleUserList(env protocol.Envelope) {
	var users []string
	if err := protocol.DecodePayload(env.Payload, &users); err != nil {
		a.logErrorf("Failed to decode user list: %v", err)
		return
	}
	sort.Strings(users)
	a.online = users
	if a.view == viewUsers {
		a.updateViewportContent()
	}
}

func (a *App) handleReceiveMessage(env protocol.Envelope) {
	var msg protocol.ReceivedMessage
	if err := protocol.DecodePayload(env.Payload, &msg); err != nil {
		a.logErrorf("Failed to decode chat message: %v", err)
		return
	}
	a.appendChatLine(a.formatChatMessage(msg, env.Timestamp))
}

func (a *App) appendChatLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	a.chatHistory = append(a.chatHistory, line)
	if a.view == viewChat {
		a.updateViewportContent()
		a.viewport.GotoBottom()
	}
}

func (a *App) appendPipeEntry(direction pipeDirection, env protocol.Envelope) {
	if a.pipeHistory == nil {
		a.pipeHistory = make([]pipeEntry, 0, pipeHistoryLimit)
	}
	bodyBytes, err := json.MarshalIndent(env, "", "  ")
	entry := pipeEntry{
		direction:   direction,
		messageType: string(env.Type),
		timestamp:   time.Now(),
		body:        string(bodyBytes),
	}
	if err != nil {
		entry.body = fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	if len(a.pipeHistory) >= pipeHistoryLimit {
		a.pipeHistory = append(a.pipeHistory[1:], entry)
	} else {
		a.pipeHistory = append(a.pipeHistory, entry)
	}
	if a.view == viewPipe {
		a.updateViewportContent()
	}
}

func (a *App) formatChatMessage(msg protocol.ReceivedMessage, at time.Time) string {
	sender := strings.TrimSpace(msg.Sender)
	if sender == "" {
		sender = "unknown"
	}
	if sender == a.username {
		sender = a.styles.self.Render(sender)
	}
	if at.IsZero() {
		return fmt.Sprintf("%s: %s", sender, msg.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", at.Local().Format("15:04:05"), sender, msg.Message)
}
