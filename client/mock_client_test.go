package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"live-relay/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{config.ProviderBilibili, config.ProviderBilibili},
		{config.ProviderTwitch, config.ProviderTwitch},
		{config.ProviderMock, config.ProviderMock},
	}

	for _, tt := range tests {
		cfg := config.NewConfig()
		cfg.Provider = tt.provider
		if got := NewProvider(cfg).Name(); got != tt.want {
			t.Errorf("NewProvider(%q).Name() = %q", tt.provider, got)
		}
	}
}

func TestMockUpstreamLifecycle(t *testing.T) {
	p := NewMockProvider(0)
	up, _ := p.NewUpstream("alice", func(Event) {})
	s := up.(*MockUpstream)

	info, err := s.Connect(context.Background())
	if err != nil || info.RoomID != "mock-alice" {
		t.Fatalf("connect = %+v, %v", info, err)
	}
	if !s.Connected() {
		t.Fatal("expected connected")
	}

	s.Disconnect()
	s.Disconnect()
	if !s.Disconnected() || s.Disconnects() != 2 {
		t.Fatalf("disconnected=%v disconnects=%d", s.Disconnected(), s.Disconnects())
	}
	if _, err := s.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("reconnect after disconnect: %v", err)
	}
}

func TestMockUpstreamGeneratesTraffic(t *testing.T) {
	var received int32
	p := NewMockProvider(5 * time.Millisecond)
	up, _ := p.NewUpstream("alice", func(ev Event) {
		if ev.Payload.Get("uniqueId").String() != "" {
			atomic.AddInt32(&received, 1)
		}
	})

	if _, err := up.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "synthetic events", func() bool { return atomic.LoadInt32(&received) >= 3 })

	up.Disconnect()
	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&received)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&received) != after {
		t.Fatal("traffic continued after disconnect")
	}
}
