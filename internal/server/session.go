package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

type envelopeReader interface {
	Decode(ctx context.Context) (protocol.Envelope, error)
}

type envelopeWriter interface {
	Encode(ctx context.Context, env protocol.Envelope) error
}

// clientSession tracks per-connection transport state and outbound delivery.
type clientSession struct {
	id       string
	conn     net.Conn
	sendCh   chan protocol.Envelope
	closeMux sync.Once
}

func newClientSession(conn net.Conn, buffer int) *clientSession {
	return &clientSession{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan protocol.Envelope, buffer),
	}
}

func (s *clientSession) writeLoop(ctx context.Context, encoder envelopeWriter, writeTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-s.sendCh:
			if !ok {
				return nil
			}
			if s.conn != nil && writeTimeout > 0 {
				if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
					return err
				}
			}
			if err := encoder.Encode(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (s *clientSession) remoteAddr() string {
	if s.conn == nil {
		return ""
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// close must run after the session is unregistered from the hub.
func (s *clientSession) close() {
	s.closeMux.Do(func() {
		close(s.sendCh)
	})
}
