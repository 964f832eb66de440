package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-relay/client"
	"live-relay/config"
	"live-relay/protocol"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	cfg := config.NewConfig()
	srv := httptest.NewServer(NewServer(cfg, f.router, f.hub).Handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) gjson.Result {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return gjson.ParseBytes(data)
}

func TestServerPingPong(t *testing.T) {
	_, srv := newTestServer(t)

	for _, path := range []string{"/", "/ws"} {
		conn := dial(t, srv, path)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"ping"}`)); err != nil {
			t.Fatal(err)
		}
		if msg := readFrame(t, conn); msg.Raw != `{"type":"pong"}` {
			t.Fatalf("%s: got %s", path, msg.Raw)
		}
	}
}

func TestServerSubscriberDisconnectEndsSession(t *testing.T) {
	f, srv := newTestServer(t)
	conn := dial(t, srv, "/ws")

	conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"watch","username":"alice"}`))
	if msg := readFrame(t, conn); msg.Get("message").String() != "Watching alice" {
		t.Fatalf("got %s", msg.Raw)
	}
	if msg := readFrame(t, conn); msg.Get("message").String() != "Connected to room mock-alice" {
		t.Fatalf("got %s", msg.Raw)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.manager.Snapshot().State != client.StateIdle || f.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not torn down after subscriber left")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.provider.Sessions()[0].Disconnects(); got != 1 {
		t.Fatalf("session released %d times", got)
	}
}

func TestServerShutdownMessageDelivered(t *testing.T) {
	f, srv := newTestServer(t)
	conn := dial(t, srv, "/ws")

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.router.Shutdown("Relay shutting down")

	if msg := readFrame(t, conn); msg.Raw != `{"type":"shutdown","message":"Relay shutting down"}` {
		t.Fatalf("got %s", msg.Raw)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after shutdown")
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)
	h := NewServer(config.NewConfig(), f.router, f.hub).HealthHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	f.router.Execute(nil, protocol.Command{Name: protocol.CommandWatch, Username: "alice"})
	f.waitLive(t)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	body := gjson.Parse(rec.Body.String())
	if rec.Code != http.StatusOK || !body.Get("connected").Bool() || body.Get("watching").String() != "alice" {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
}
