package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, kind protocol.MessageType, payload interface{}) {
	t.Helper()
	env := protocol.Envelope{ID: uuid.NewString(), Type: kind, Timestamp: time.Now(), Payload: payload}
	if err := websocket.JSON.Send(conn, env); err != nil {
		t.Fatalf("send %s: %v", kind, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, kind protocol.MessageType) protocol.Envelope {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	for {
		var env protocol.Envelope
		if err := websocket.JSON.Receive(conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if env.Type == kind {
			return env
		}
	}
}

func TestUpEndpoint(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("/up = %d %q, want 200 OK", resp.StatusCode, body)
	}
}

func TestWSRejectsNonGet(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/ws", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
	if got := resp.Header.Get("Allow"); got != http.MethodGet {
		t.Fatalf("Allow = %q, want GET", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pairchat_connections") {
		t.Fatalf("metrics output missing pairchat_connections")
	}
}

func TestWebSocketPairsWithTCPClient(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	alice := dialWS(t, srv)
	writeEvent(t, alice, protocol.MessageTypeGoOffline, "alice")
	readEvent(t, alice, protocol.MessageTypeUserList)

	bob := connectPipe(t, app)
	bob.send(t, protocol.MessageTypeGoOnline, "bob")

	if got := matchedPartner(t, readEvent(t, alice, protocol.MessageTypeMatched)); got != "bob" {
		t.Fatalf("alice matched %q, want bob", got)
	}
	if got := matchedPartner(t, bob.expect(t, protocol.MessageTypeMatched)); got != "alice" {
		t.Fatalf("bob matched %q, want alice", got)
	}

	writeEvent(t, alice, protocol.MessageTypeSendMessage, protocol.SendMessageRequest{Sender: "alice", Receiver: "bob", Message: "hey"})

	got := receivedMessage(t, bob.expect(t, protocol.MessageTypeReceiveMessage))
	if got.Sender != "alice" || got.Message != "hey" {
		t.Fatalf("bob received %+v", got)
	}
	echo := receivedMessage(t, readEvent(t, alice, protocol.MessageTypeReceiveMessage))
	if echo.Message != "hey" {
		t.Fatalf("alice echo %+v", echo)
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv)
	if err := websocket.Message.Send(conn, "not json"); err != nil {
		t.Fatalf("send: %v", err)
	}
	writeEvent(t, conn, protocol.MessageTypeGoOnline, "alice")

	var online []string
	if err := protocol.DecodePayload(readEvent(t, conn, protocol.MessageTypeUserList).Payload, &online); err != nil {
		t.Fatalf("decode userList: %v", err)
	}
	if len(online) != 1 || online[0] != "alice" {
		t.Fatalf("userList = %v, want [alice]", online)
	}
}
