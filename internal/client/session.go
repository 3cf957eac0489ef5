package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

const incomingBuffer = 64

// Session manages the client-side socket to a PairChat server.
type Session struct {
	addr     string
	conn     net.Conn
	encoder  *protocol.Encoder
	decoder  *protocol.Decoder
	incoming chan protocol.Envelope
	cancelFn context.CancelFunc
	closeMu  sync.Once
}

// NewSession initializes a session for addr.
func NewSession(addr string) *Session {
	return &Session{
		addr:     addr,
		incoming: make(chan protocol.Envelope, incomingBuffer),
	}
}

// Addr returns the server address of the session.
func (s *Session) Addr() string {
	return s.addr
}

// Connect dials the server and starts reading frames in the background.
func (s *Session) Connect(ctx context.Context) error {
	if s.addr == "" {
		return errors.New("server address is empty")
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.encoder = protocol.NewEncoder(conn)
	s.decoder = protocol.NewDecoder(conn, 0)

	readCtx, cancel := context.WithCancel(context.Background())
	s.cancelFn = cancel
	go s.readLoop(readCtx)
	return nil
}

// Messages streams envelopes received from the server. The channel is
// closed when the connection ends.
func (s *Session) Messages() <-chan protocol.Envelope {
	return s.incoming
}

// Close terminates the session.
func (s *Session) Close() error {
	var err error
	s.closeMu.Do(func() {
		if s.cancelFn != nil {
			s.cancelFn()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// Send dispatches an envelope to the server.
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	if s.encoder == nil {
		return net.ErrClosed
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return s.encoder.Encode(ctx, env)
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.incoming)
	for {
		env, err := s.decoder.Decode(ctx)
		if err != nil {
			return
		}
		select {
		case s.incoming <- env:
		case <-ctx.Done():
			return
		}
	}
}
