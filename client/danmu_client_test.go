package client

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"live-relay/config"
	"live-relay/protocol"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// fakeDanmuServer 模拟弹幕服务器：校验认证包后交给 script 继续
func fakeDanmuServer(t *testing.T, authReply string, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		packet, err := protocol.DecodePacket(data)
		if err != nil || packet.Operation != protocol.OpUserAuth {
			t.Errorf("expected auth packet, got %+v (%v)", packet, err)
			return
		}
		if gjson.GetBytes(packet.Body, "roomid").Int() != 42 {
			t.Errorf("auth packet for wrong room: %s", packet.Body)
		}

		if authReply == "" {
			// 不回应，等待客户端超时
			conn.ReadMessage()
			return
		}
		reply := protocol.NewPacket(protocol.OpConnect, []byte(authReply))
		if err := conn.WriteMessage(websocket.BinaryMessage, reply.Encode()); err != nil {
			return
		}
		if script != nil {
			script(conn)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func compressed(t *testing.T, bodies ...string) []byte {
	t.Helper()
	var inner []byte
	for _, b := range bodies {
		inner = append(inner, protocol.NewPacket(protocol.OpMessage, []byte(b)).Encode()...)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(inner)
	w.Close()

	packet := protocol.NewPacket(protocol.OpMessage, buf.Bytes())
	packet.Version = protocol.VersionZlib
	return packet.Encode()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func newTestDanmuClient(t *testing.T, url string, log *eventLog) *DanmuClient {
	cookiePath := filepath.Join(t.TempDir(), "cookie.json")
	return NewDanmuClient(42, url, cookiePath, time.Hour, log.listen)
}

func TestDanmuClientReceivesEvents(t *testing.T) {
	srv := fakeDanmuServer(t, `{"code":0}`, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, compressed(t,
			`{"cmd":"DANMU_MSG","info":[[0],"hello",[7,"alice"]]}`,
			`{"cmd":"SEND_GIFT","data":{"giftName":"Rose","num":3,"uname":"bob"}}`,
			`{"cmd":"INTERACT_WORD","data":{"msg_type":1,"uname":"enter"}}`,
			`{"cmd":"INTERACT_WORD","data":{"msg_type":2,"uname":"carol"}}`,
		))
		conn.WriteMessage(websocket.BinaryMessage,
			protocol.NewPacket(protocol.OpMessage, []byte(`{"cmd":"LIKE_INFO_V3_CLICK","data":{"uname":"dave"}}`)).Encode())
		// 等客户端读完再关闭
		time.Sleep(100 * time.Millisecond)
	})

	log := &eventLog{}
	c := newTestDanmuClient(t, wsURL(srv), log)

	info, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if info.RoomID != "42" {
		t.Fatalf("room id = %q", info.RoomID)
	}

	waitFor(t, "disconnect after server close", func() bool {
		events := log.snapshot()
		return len(events) > 0 && events[len(events)-1].Kind == EventDisconnected
	})

	events := log.snapshot()
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventChat, EventGift, EventFollow, EventLike, EventDisconnected}
	if len(kinds) != len(want) {
		t.Fatalf("got kinds %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("got kinds %v, want %v", kinds, want)
		}
	}

	if got := events[0].Payload.Get("info.1").String(); got != "hello" {
		t.Errorf("chat payload = %s", events[0].Payload.Raw)
	}
	if got := events[1].Payload.Get("giftName").String(); got != "Rose" {
		t.Errorf("gift payload = %s", events[1].Payload.Raw)
	}
	if got := events[2].Payload.Get("uname").String(); got != "carol" {
		t.Errorf("follow payload = %s", events[2].Payload.Raw)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect after drop: %v", err)
	}
	if len(log.snapshot()) != len(want) {
		t.Fatal("disconnect after drop emitted another event")
	}
}

func TestDanmuClientAuthRejected(t *testing.T) {
	srv := fakeDanmuServer(t, `{"code":-101}`, nil)

	log := &eventLog{}
	c := newTestDanmuClient(t, wsURL(srv), log)

	if _, err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected auth failure")
	}
	if len(log.snapshot()) != 0 {
		t.Fatal("connect failure must not emit events")
	}
}

func TestDanmuClientConnectTimeout(t *testing.T) {
	srv := fakeDanmuServer(t, "", nil)

	log := &eventLog{}
	c := newTestDanmuClient(t, wsURL(srv), log)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Connect(ctx)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(log.snapshot()) != 0 {
		t.Fatal("connect failure must not emit events")
	}
}

func TestDanmuClientDisconnectIsSilent(t *testing.T) {
	srv := fakeDanmuServer(t, `{"code":0}`, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	log := &eventLog{}
	c := newTestDanmuClient(t, wsURL(srv), log)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("expected connected")
	}

	c.Disconnect()
	c.Disconnect()
	time.Sleep(50 * time.Millisecond)

	if c.IsConnected() {
		t.Fatal("still connected after disconnect")
	}
	if len(log.snapshot()) != 0 {
		t.Fatalf("self disconnect emitted %+v", log.snapshot())
	}
}

func TestDanmuClientDisconnectBeforeConnect(t *testing.T) {
	srv := fakeDanmuServer(t, `{"code":0}`, nil)

	c := newTestDanmuClient(t, wsURL(srv), &eventLog{})
	c.Disconnect()

	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDanmuClientHeartbeatFailureReportsError(t *testing.T) {
	log := &eventLog{}
	c := NewDanmuClient(42, "ws://127.0.0.1:0", filepath.Join(t.TempDir(), "cookie.json"), time.Millisecond, log.listen)

	c.heartbeatLoop()

	events := log.snapshot()
	if len(events) != 1 || events[0].Kind != EventError || !errors.Is(events[0].Err, ErrNotConnected) {
		t.Fatalf("unexpected events %+v", events)
	}

	c.Disconnect()
	if len(log.snapshot()) != 1 {
		t.Fatal("disconnect after failure emitted another event")
	}
}

func TestBilibiliProviderTargets(t *testing.T) {
	p := NewBilibiliProvider(config.NewConfig())

	for _, target := range []string{"", "abc", "-3", "0", "12x"} {
		if _, err := p.NewUpstream(target, func(Event) {}); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("target %q: expected ErrInvalidTarget, got %v", target, err)
		}
	}
	if _, err := p.NewUpstream(" 42 ", func(Event) {}); err != nil {
		t.Errorf("valid room rejected: %v", err)
	}
}
