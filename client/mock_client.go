package client

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"live-relay/config"

	"github.com/tidwall/gjson"
)

var mockUsers = []string{"alice", "bob", "carol", "dave", "erin"}

// 合成流量按顺序循环
var mockTraffic = []struct {
	kind    EventKind
	payload string
}{
	{EventChat, `{"comment":"hello from the mock stream"}`},
	{EventGift, `{"giftName":"5655","repeatCount":3}`},
	{EventLike, `{"likeCount":15}`},
	{EventGift, `{"gift":{"name":"Doughnut"}}`},
	{EventFollow, `{}`},
	{EventChat, `{"comment":"nice stream!"}`},
	{EventShare, `{}`},
}

// MockProvider 不依赖网络的上游，用于演示和测试
type MockProvider struct {
	interval time.Duration
	mutex    sync.Mutex
	sessions []*MockUpstream
}

// NewMockProvider interval 大于 0 时每个连接按该间隔产生合成事件
func NewMockProvider(interval time.Duration) *MockProvider {
	return &MockProvider{interval: interval}
}

func (p *MockProvider) Name() string {
	return config.ProviderMock
}

func (p *MockProvider) NewUpstream(target string, listener Listener) (Upstream, error) {
	s := &MockUpstream{
		Target:   target,
		listener: listener,
		interval: p.interval,
		done:     make(chan struct{}),
	}

	p.mutex.Lock()
	p.sessions = append(p.sessions, s)
	p.mutex.Unlock()

	return s, nil
}

// Sessions 按创建顺序返回所有连接
func (p *MockProvider) Sessions() []*MockUpstream {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]*MockUpstream(nil), p.sessions...)
}

type MockUpstream struct {
	Target string

	listener    Listener
	interval    time.Duration
	done        chan struct{}
	mutex       sync.Mutex
	connected   bool
	closed      bool
	disconnects int
}

// Connect 立即成功
func (s *MockUpstream) Connect(ctx context.Context) (RoomInfo, error) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return RoomInfo{}, ErrClosed
	}
	s.connected = true
	s.mutex.Unlock()

	if s.interval > 0 {
		go s.generate()
	}
	return RoomInfo{RoomID: "mock-" + s.Target}, nil
}

func (s *MockUpstream) Disconnect() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.disconnects++
	if !s.closed {
		s.closed = true
		s.connected = false
		close(s.done)
	}
	return nil
}

// Emit 以上游身份投递一条事件
func (s *MockUpstream) Emit(kind EventKind, payload string) {
	s.listener(Event{Kind: kind, Payload: gjson.Parse(payload)})
}

// Drop 模拟连接意外断开
func (s *MockUpstream) Drop(reason error) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	s.connected = false
	close(s.done)
	s.mutex.Unlock()

	s.listener(Event{Kind: EventDisconnected, Err: reason})
}

func (s *MockUpstream) Connected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.connected
}

// Disconnected 是否已被主动或意外断开
func (s *MockUpstream) Disconnected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// Disconnects Disconnect 被调用的次数
func (s *MockUpstream) Disconnects() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.disconnects
}

func (s *MockUpstream) generate() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			item := mockTraffic[tick%len(mockTraffic)]
			tick++

			user := mockUsers[rand.Intn(len(mockUsers))]
			s.listener(Event{Kind: item.kind, Payload: withUser(item.payload, user)})
		}
	}
}

// withUser 在合成负载中填入用户
func withUser(raw, user string) gjson.Result {
	fields := map[string]any{}
	for k, v := range gjson.Parse(raw).Map() {
		fields[k] = v.Value()
	}
	fields["uniqueId"] = user
	return payload(fields)
}
