package server

import (
	"context"
	"log"

	"github.com/fenggwsx/PairChat/internal/chat"
	"github.com/fenggwsx/PairChat/internal/metrics"
	"github.com/fenggwsx/PairChat/internal/protocol"
)

func (a *App) routeEnvelope(ctx context.Context, session *chat.Session, env protocol.Envelope) {
	switch env.Type {
	case protocol.MessageTypeGoOnline:
		a.handleGoOnline(ctx, session, env)
	case protocol.MessageTypeGoOffline:
		a.handleGoOffline(ctx, session, env)
	case protocol.MessageTypeSendMessage:
		a.handleSendMessage(ctx, session, env)
	default:
		metrics.EventsDropped.WithLabelValues("unknown_type").Inc()
		log.Printf("unhandled envelope type: %s conn=%s", env.Type, session.ConnID())
	}
}

func (a *App) handleGoOnline(ctx context.Context, session *chat.Session, env protocol.Envelope) {
	var username string
	if err := protocol.DecodePayload(env.Payload, &username); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if err := session.GoOnline(ctx, username); err != nil {
		log.Printf("goOnline failed conn=%s err=%v", session.ConnID(), err)
		return
	}
	log.Printf("user online user=%s conn=%s partner=%s", session.Username(), session.ConnID(), partnerOf(session))
}

func (a *App) handleGoOffline(ctx context.Context, session *chat.Session, env protocol.Envelope) {
	var username string
	if err := protocol.DecodePayload(env.Payload, &username); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if err := session.GoOffline(ctx, username); err != nil {
		log.Printf("goOffline failed conn=%s err=%v", session.ConnID(), err)
		return
	}
	log.Printf("user offline user=%s conn=%s partner=%s", session.Username(), session.ConnID(), partnerOf(session))
}

func (a *App) handleSendMessage(ctx context.Context, session *chat.Session, env protocol.Envelope) {
	var req protocol.SendMessageRequest
	if err := protocol.DecodePayload(env.Payload, &req); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	outcome, err := session.SendMessage(ctx, req)
	if err != nil {
		log.Printf("sendMessage failed conn=%s err=%v", session.ConnID(), err)
		return
	}
	if outcome.MessageID == 0 {
		return
	}
	log.Printf("chat message stored id=%d sender=%s receiver=%s delivered=%t len=%d",
		outcome.MessageID, req.Sender, req.Receiver, outcome.Delivered, len(req.Message))
}

func partnerOf(session *chat.Session) string {
	if pairing, ok := session.Pairing(); ok {
		return pairing.Partner
	}
	return "-"
}
