package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"live-relay/model"
	"live-relay/utils"

	"github.com/sirupsen/logrus"
)

// Mirror 接收每条广播的副本
type Mirror interface {
	Publish(data []byte)
}

// Hub 把事件扇出给所有订阅者。
// 广播在持锁期间完成，所有订阅者看到相同的事件顺序。
type Hub struct {
	mu           sync.Mutex
	subscribers  map[string]*Subscriber
	mirrors      []Mirror
	onUnregister func(s *Subscriber, remaining int)
	log          *logrus.Entry
}

func New() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		log:         utils.Component("hub"),
	}
}

// SetOnUnregister 订阅者移除后回调，remaining 为剩余订阅者数量
func (h *Hub) SetOnUnregister(fn func(s *Subscriber, remaining int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnregister = fn
}

func (h *Hub) AddMirror(m Mirror) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirrors = append(h.mirrors, m)
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	h.subscribers[s.ID()] = s
	count := len(h.subscribers)
	h.mu.Unlock()

	h.log.WithField("subscriber", s.ID()).Infof("订阅者加入，当前 %d 个", count)
}

// Unregister 移除并关闭订阅者，可重复调用，只有第一次会触发回调
func (h *Hub) Unregister(s *Subscriber) bool {
	h.mu.Lock()
	if _, ok := h.subscribers[s.ID()]; !ok {
		h.mu.Unlock()
		s.Close()
		return false
	}
	delete(h.subscribers, s.ID())
	remaining := len(h.subscribers)
	onUnregister := h.onUnregister
	h.mu.Unlock()

	s.Close()
	h.log.WithField("subscriber", s.ID()).Infof("订阅者离开，剩余 %d 个", remaining)

	if onUnregister != nil {
		onUnregister(s, remaining)
	}
	return true
}

// Broadcast 序列化一次后发送给所有订阅者，缓冲区满的订阅者被移除
func (h *Hub) Broadcast(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorf("序列化事件 %s 失败: %v", ev.EventType(), err)
		return
	}

	var slow []*Subscriber

	h.mu.Lock()
	for _, s := range h.subscribers {
		if err := s.Send(data); errors.Is(err, ErrSlowSubscriber) {
			slow = append(slow, s)
		}
	}
	for _, m := range h.mirrors {
		m.Publish(data)
	}
	h.mu.Unlock()

	for _, s := range slow {
		h.log.WithField("subscriber", s.ID()).Warn("订阅者处理过慢，断开")
		h.Unregister(s)
	}
}

// Send 只发送给一个订阅者
func (h *Hub) Send(s *Subscriber, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorf("序列化事件 %s 失败: %v", ev.EventType(), err)
		return
	}

	if err := s.Send(data); errors.Is(err, ErrSlowSubscriber) {
		h.log.WithField("subscriber", s.ID()).Warn("订阅者处理过慢，断开")
		h.Unregister(s)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close 关闭所有订阅者，不触发回调
func (h *Hub) Close() {
	h.mu.Lock()
	subscribers := h.subscribers
	h.subscribers = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, s := range subscribers {
		s.Close()
	}
}
