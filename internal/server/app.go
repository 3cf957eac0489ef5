package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fenggwsx/PairChat/internal/chat"
	"github.com/fenggwsx/PairChat/internal/config"
	"github.com/fenggwsx/PairChat/internal/metrics"
	"github.com/fenggwsx/PairChat/internal/presence"
	"github.com/fenggwsx/PairChat/internal/protocol"
	"github.com/fenggwsx/PairChat/internal/storage"
)

// App coordinates network listeners, connection lifecycle and event routing.
type App struct {
	cfg   config.ServerConfig
	store storage.Store
	hub   *ConnHub
	chat  *chat.Service

	listener   net.Listener
	httpServer *http.Server
	closeOnce  sync.Once
	conns      sync.WaitGroup
}

// NewApp constructs a server instance using the provided dependencies.
func NewApp(cfg config.ServerConfig, store storage.Store) *App {
	hub := NewConnHub()
	return &App{
		cfg:   cfg,
		store: store,
		hub:   hub,
		chat:  chat.NewService(presence.NewRegistry(), store, hub),
	}
}

// Run serves the framed TCP protocol and the HTTP surface until the
// context is canceled. It returns after every connection has been torn down.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	listener, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	a.listener = listener

	httpListener, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("listen http: %w", err)
	}
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Printf("server listening tcp=%s http=%s", listener.Addr(), httpListener.Addr())

	errCh := make(chan error, 2)

	a.conns.Add(1)
	go func() {
		defer a.conns.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					errCh <- nil
					return
				}
				errCh <- fmt.Errorf("accept: %w", err)
				return
			}
			a.conns.Add(1)
			go func() {
				defer a.conns.Done()
				a.handleConnection(ctx, conn)
			}()
		}
	}()

	go func() {
		if err := a.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.Close()
	a.conns.Wait()
	return runErr
}

// Close stops accepting new connections. Open connections wind down once
// the context passed to Run is canceled.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.listener != nil {
			_ = a.listener.Close()
		}
		if a.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("http shutdown: %v", err)
			}
		}
	})
}

func (a *App) handleConnection(ctx context.Context, conn net.Conn) {
	a.serve(ctx, conn, protocol.NewDecoder(conn, a.cfg.MaxFrameBytes), protocol.NewEncoder(conn))
}

// serve runs one connection until the peer leaves, a transport error
// occurs or ctx is canceled. Inbound events are handled in arrival order.
func (a *App) serve(parentCtx context.Context, conn net.Conn, reader envelopeReader, writer envelopeWriter) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	client := newClientSession(conn, a.cfg.SendBuffer)
	session := a.chat.Open(client.id)
	a.hub.Register(client.id, client.sendCh)
	metrics.Connections.Inc()
	log.Printf("connection opened conn=%s remote=%s", client.id, client.remoteAddr())

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := client.writeLoop(ctx, writer, a.cfg.WriteTimeout); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("write failed conn=%s err=%v", client.id, err)
		}
		cancel()
	}()

	defer func() {
		a.hub.Unregister(client.id)
		if err := session.Disconnect(context.WithoutCancel(ctx)); err != nil {
			log.Printf("disconnect failed conn=%s err=%v", client.id, err)
		}
		client.close()
		cancel()
		<-writeDone
		metrics.Connections.Dec()
		log.Printf("connection closed conn=%s user=%s", client.id, session.Username())
	}()

	limiter := newEventLimiter(a.cfg.Limits)

	for {
		if a.cfg.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout)); err != nil {
				log.Printf("set read deadline conn=%s err=%v", client.id, err)
				return
			}
		}
		env, err := reader.Decode(ctx)
		if errors.Is(err, protocol.ErrMalformedFrame) {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			log.Printf("event dropped conn=%s reason=malformed err=%v", client.id, err)
			continue
		}
		if err != nil {
			if !isClosedErr(err) {
				log.Printf("decode failed conn=%s err=%v", client.id, err)
			}
			return
		}

		if !limiter.Allow() {
			metrics.EventsDropped.WithLabelValues("rate_limited").Inc()
			log.Printf("event dropped conn=%s type=%s reason=rate_limited", client.id, env.Type)
			continue
		}
		a.routeEnvelope(ctx, session, env)
	}
}

func newEventLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.EventRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.EventBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.EventRate), burst)
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}
