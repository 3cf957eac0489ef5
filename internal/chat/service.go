// Package chat implements presence transitions, partner matching and
// message delivery on top of a presence.Registry and a durable store.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/PairChat/internal/metrics"
	"github.com/fenggwsx/PairChat/internal/presence"
	"github.com/fenggwsx/PairChat/internal/protocol"
	"github.com/fenggwsx/PairChat/internal/storage"
)

// Notifier delivers outbound events to live connections.
type Notifier interface {
	// Send hands event to connID and reports whether the connection accepted it.
	Send(connID string, event protocol.Envelope) bool
	// Broadcast hands event to every live connection.
	Broadcast(event protocol.Envelope)
}

// DeliveryStore is the durable side of message delivery and presence.
type DeliveryStore interface {
	CreateMessage(ctx context.Context, msg *storage.ChatMessage) error
	MarkDelivered(ctx context.Context, ids ...uint) error
	FindUndelivered(ctx context.Context, receiver string) ([]storage.ChatMessage, error)
	UpsertUserStatus(ctx context.Context, username string, status storage.Status, connectionID string) error
}

// DeliveryOutcome reports what happened to a routed message.
type DeliveryOutcome struct {
	MessageID uint
	// Delivered is set when the receiver's live connection accepted the message.
	Delivered bool
	// Echoed is set when the sender's live connection accepted the echo.
	Echoed bool
}

// Service wires the registry, the store and the outbound notifier.
type Service struct {
	registry *presence.Registry
	store    DeliveryStore
	notifier Notifier
	// deliveries keeps live routing to a receiver apart from its reconnect flush.
	deliveries *deliveryLocks
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(registry *presence.Registry, store DeliveryStore, notifier Notifier) *Service {
	return &Service{
		registry:   registry,
		store:      store,
		notifier:   notifier,
		deliveries: newDeliveryLocks(),
		now:        time.Now,
	}
}

// Registry exposes the underlying presence registry.
func (s *Service) Registry() *presence.Registry {
	return s.registry
}

// route persists one message and attempts live delivery to the receiver
// plus an echo to the sender. It holds the receiver's delivery lock, so a
// message is either queued before a flush reads the queue or sent live
// after the flush has drained it.
func (s *Service) route(ctx context.Context, sender, receiver, body string) (DeliveryOutcome, error) {
	release := s.deliveries.lock(receiver)
	defer release()

	msg := storage.ChatMessage{
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, &msg); err != nil {
		metrics.StoreErrors.WithLabelValues(string(protocol.MessageTypeSendMessage)).Inc()
		return DeliveryOutcome{}, fmt.Errorf("create message: %w", err)
	}

	outcome := DeliveryOutcome{MessageID: msg.ID}
	event := newEvent(protocol.MessageTypeReceiveMessage, protocol.ReceivedMessage{Sender: sender, Message: body})

	var markErr error
	if connID, ok := s.registry.Resolve(receiver); ok && s.notifier.Send(connID, event) {
		outcome.Delivered = true
		if err := s.store.MarkDelivered(ctx, msg.ID); err != nil {
			metrics.StoreErrors.WithLabelValues(string(protocol.MessageTypeSendMessage)).Inc()
			markErr = fmt.Errorf("mark message %d delivered: %w", msg.ID, err)
		}
		metrics.MessagesRouted.WithLabelValues(metrics.OutcomeDelivered).Inc()
	} else {
		metrics.MessagesRouted.WithLabelValues(metrics.OutcomeQueued).Inc()
	}

	if connID, ok := s.registry.Resolve(sender); ok {
		outcome.Echoed = s.notifier.Send(connID, newEvent(protocol.MessageTypeReceiveMessage, protocol.ReceivedMessage{Sender: sender, Message: body}))
	}

	return outcome, markErr
}

// flush delivers queued messages for username to connID in creation order
// and marks exactly the delivered rows. It returns the number delivered.
// The caller holds username's delivery lock.
func (s *Service) flush(ctx context.Context, username, connID string) (int, error) {
	queued, err := s.store.FindUndelivered(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("find undelivered: %w", err)
	}
	if len(queued) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(queued))
	for _, msg := range queued {
		event := newEvent(protocol.MessageTypeReceiveMessage, protocol.ReceivedMessage{Sender: msg.Sender, Message: msg.Body})
		if !s.notifier.Send(connID, event) {
			break
		}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.store.MarkDelivered(ctx, ids...); err != nil {
		return len(ids), fmt.Errorf("mark %d messages delivered: %w", len(ids), err)
	}
	metrics.MessagesFlushed.Add(float64(len(ids)))
	return len(ids), nil
}

func (s *Service) announceMatch(match *presence.Match) {
	if match == nil {
		return
	}
	metrics.PairingsFormed.Inc()
	s.notifier.Send(match.UserConn, newEvent(protocol.MessageTypeMatched, match.Partner))
	s.notifier.Send(match.PartnerConn, newEvent(protocol.MessageTypeMatched, match.User))
}

func (s *Service) broadcastUserList(online []string) {
	if online == nil {
		online = []string{}
	}
	s.notifier.Broadcast(newEvent(protocol.MessageTypeUserList, online))
	s.recordStats()
}

func (s *Service) recordStats() {
	stats := s.registry.Stats()
	metrics.OnlineUsers.Set(float64(stats.Online))
	metrics.ActivePairings.Set(float64(stats.Pairings))
}

func newEvent(kind protocol.MessageType, payload interface{}) protocol.Envelope {
	return protocol.Envelope{
		ID:        uuid.NewString(),
		Type:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
