package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

const DefaultBuffer = 256

var (
	ErrSubscriberClosed = errors.New("订阅者已关闭")
	ErrSlowSubscriber   = errors.New("订阅者发送缓冲区已满")
)

// Subscriber 一个下游订阅连接的发送端
type Subscriber struct {
	id     string
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscriber{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

// Send 入队一条消息，缓冲区满时关闭订阅者
func (s *Subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}

	select {
	case s.send <- data:
		return nil
	default:
		s.closeLocked()
		return ErrSlowSubscriber
	}
}

// SendChan 写协程读取的队列，关闭后 channel 被关闭
func (s *Subscriber) SendChan() <-chan []byte {
	return s.send
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Subscriber) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
