package server

import (
	"context"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/fenggwsx/PairChat/internal/metrics"
	"github.com/fenggwsx/PairChat/internal/protocol"
)

// Handler returns the HTTP surface: health check, metrics and the
// websocket transport carrying one JSON envelope per text frame.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", metrics.Handler())

	wsServer := websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   a.handleWebSocket,
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// Counted before the hijack so Shutdown cannot return ahead of it.
		a.conns.Add(1)
		defer a.conns.Done()
		wsServer.ServeHTTP(w, r)
	})
	return mux
}

func (a *App) handleWebSocket(conn *websocket.Conn) {
	conn.MaxPayloadBytes = a.cfg.MaxFrameBytes
	codec := wsCodec{conn: conn}
	a.serve(conn.Request().Context(), conn, codec, codec)
}

type wsCodec struct {
	conn *websocket.Conn
}

func (c wsCodec) Decode(ctx context.Context) (protocol.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Envelope{}, err
	}
	var data []byte
	if err := websocket.Message.Receive(c.conn, &data); err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.UnmarshalEnvelope(data)
}

func (c wsCodec) Encode(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return websocket.JSON.Send(c.conn, env)
}
