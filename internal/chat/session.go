package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fenggwsx/PairChat/internal/metrics"
	"github.com/fenggwsx/PairChat/internal/presence"
	"github.com/fenggwsx/PairChat/internal/protocol"
	"github.com/fenggwsx/PairChat/internal/storage"
)

// State is the lifecycle position of one connection.
type State int

const (
	StateUnidentified State = iota
	StateOnline
	StateOffline
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unidentified"
	}
}

// Session drives the lifecycle of a single connection. Its methods are
// serialized; events arriving after Disconnect are ignored.
type Session struct {
	svc    *Service
	connID string

	mu       sync.Mutex
	state    State
	username string
}

// Open starts the lifecycle of connID in the Unidentified state.
func (s *Service) Open(connID string) *Session {
	return &Session{svc: s, connID: connID}
}

// ConnID returns the connection identifier of the session.
func (s *Session) ConnID() string {
	return s.connID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the last username announced on the connection.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// GoOnline persists the online status, registers the connection in the
// online pool, looks for an offline partner, flushes queued messages and
// broadcasts the online list. A blank username is ignored.
func (s *Session) GoOnline(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return nil
	}

	if err := s.svc.store.UpsertUserStatus(ctx, username, storage.StatusOnline, s.connID); err != nil {
		metrics.StoreErrors.WithLabelValues(string(protocol.MessageTypeGoOnline)).Inc()
		return fmt.Errorf("goOnline %s: persist status: %w", username, err)
	}

	release := s.svc.deliveries.lock(username)
	transition := s.svc.registry.RegisterOnline(s.connID, username)
	s.state = StateOnline
	s.username = username
	s.svc.announceMatch(transition.Match)
	_, flushErr := s.svc.flush(ctx, username, s.connID)
	release()

	dropErr := s.releaseDropped(ctx, transition)
	s.svc.broadcastUserList(transition.Online)

	if flushErr != nil {
		metrics.StoreErrors.WithLabelValues(string(protocol.MessageTypeGoOnline)).Inc()
		return fmt.Errorf("goOnline %s: %w", username, flushErr)
	}
	if dropErr != nil {
		return fmt.Errorf("goOnline %s: %w", username, dropErr)
	}
	return nil
}

// GoOffline persists the offline status, registers the connection in the
// offline pool, looks for an online partner and broadcasts the online list.
// A blank username is ignored.
func (s *Session) GoOffline(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return nil
	}

	if err := s.svc.store.UpsertUserStatus(ctx, username, storage.StatusOffline, s.connID); err != nil {
		metrics.StoreErrors.WithLabelValues(string(protocol.MessageTypeGoOffline)).Inc()
		return fmt.Errorf("goOffline %s: persist status: %w", username, err)
	}

	transition := s.svc.registry.RegisterOffline(s.connID, username)
	s.state = StateOffline
	s.username = username
	s.svc.announceMatch(transition.Match)

	dropErr := s.releaseDropped(ctx, transition)
	s.svc.broadcastUserList(transition.Online)
	if dropErr != nil {
		return fmt.Errorf("goOffline %s: %w", username, dropErr)
	}
	return nil
}

// releaseDropped persists the offline status of a username the connection
// gave up by announcing another one.
func (s *Session) releaseDropped(ctx context.Context, transition presence.Transition) error {
	if transition.Dropped == "" {
		return nil
	}
	if err := s.svc.store.UpsertUserStatus(ctx, transition.Dropped, storage.StatusOffline, ""); err != nil {
		metrics.StoreErrors.WithLabelValues("rename").Inc()
		return fmt.Errorf("release %s: persist status: %w", transition.Dropped, err)
	}
	return nil
}

// SendMessage routes a chat message. Requests missing a sender, receiver or
// body are ignored and yield a zero outcome.
func (s *Session) SendMessage(ctx context.Context, req protocol.SendMessageRequest) (DeliveryOutcome, error) {
	sender := strings.TrimSpace(req.Sender)
	receiver := strings.TrimSpace(req.Receiver)
	if sender == "" || receiver == "" || strings.TrimSpace(req.Message) == "" {
		return DeliveryOutcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return DeliveryOutcome{}, nil
	}

	outcome, err := s.svc.route(ctx, sender, receiver, req.Message)
	if err != nil {
		return outcome, fmt.Errorf("sendMessage %s->%s: %w", sender, receiver, err)
	}
	return outcome, nil
}

// Disconnect moves the session to its terminal state. An identified
// connection is removed from the registry, its pairing dissolved, the
// online list broadcast and the offline status persisted.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return nil
	}
	s.state = StateDisconnected

	removal, ok := s.svc.registry.Remove(s.connID)
	if !ok {
		return nil
	}
	s.svc.broadcastUserList(removal.Online)

	if err := s.svc.store.UpsertUserStatus(ctx, removal.Username, storage.StatusOffline, ""); err != nil {
		metrics.StoreErrors.WithLabelValues("disconnect").Inc()
		return fmt.Errorf("disconnect %s: persist status: %w", removal.Username, err)
	}
	return nil
}

// Pairing reports the current partner of the session's username.
func (s *Session) Pairing() (presence.Pairing, bool) {
	username := s.Username()
	if username == "" {
		return presence.Pairing{}, false
	}
	return s.svc.registry.Pairing(username)
}
