package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"live-relay/config"
	"live-relay/handler"
	"live-relay/model"
	"live-relay/utils"

	"github.com/sirupsen/logrus"
)

// State 上游会话状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Broadcaster 接收归一化后的事件
type Broadcaster interface {
	Broadcast(ev model.Event)
}

type session struct {
	epoch  uint64
	target string
	owner  string
	roomID string
	state  State
	conn   Upstream
}

// Snapshot 当前会话的只读快照
type Snapshot struct {
	State  State
	Target string
	Owner  string
	RoomID string
	Epoch  uint64
}

// Connected 是否处于直播中
func (s Snapshot) Connected() bool {
	return s.State == StateLive
}

// Manager 同一时刻最多持有一个上游会话
type Manager struct {
	provider Provider
	hub      Broadcaster
	timeout  time.Duration
	handlers map[EventKind]handler.Normalizer
	log      *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	mutex   sync.Mutex
	epoch   uint64
	current *session
	wg      sync.WaitGroup
}

func NewManager(cfg *config.Config, provider Provider, hub Broadcaster) *Manager {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		provider: provider,
		hub:      hub,
		timeout:  timeout,
		handlers: make(map[EventKind]handler.Normalizer),
		log:      utils.Component("manager"),
		ctx:      ctx,
		cancel:   cancel,
	}

	// 注册事件处理器
	m.registerHandlers()

	return m
}

func (m *Manager) registerHandlers() {
	m.handlers[EventGift] = handler.GiftHandler{}
	m.handlers[EventChat] = handler.DanmuHandler{}
	m.handlers[EventFollow] = handler.FollowHandler{}
	m.handlers[EventShare] = handler.ShareHandler{}
	m.handlers[EventLike] = handler.LikeHandler{}
}

// StartWatching 观看 target，先释放当前会话再建立新会话。
// owner 为发起观看的订阅者，控制台等非订阅者传空串。
func (m *Manager) StartWatching(target, owner string) error {
	return m.Watch(target, owner, nil)
}

// Watch 同 StartWatching，accepted 在会话登记后、开始连接前调用。
// 已在观看同一 target 时返回 ErrAlreadyWatching，不会重连。
func (m *Manager) Watch(target, owner string, accepted func()) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrInvalidTarget
	}

	m.mutex.Lock()
	if m.ctx.Err() != nil {
		m.mutex.Unlock()
		return ErrClosed
	}
	if m.current != nil && m.current.target == target {
		m.mutex.Unlock()
		return ErrAlreadyWatching
	}
	old := m.detachLocked()
	m.epoch++
	s := &session{
		epoch:  m.epoch,
		target: target,
		owner:  owner,
		state:  StateConnecting,
	}
	m.current = s
	m.wg.Add(1)
	m.mutex.Unlock()

	m.release(old)
	if accepted != nil {
		accepted()
	}

	log := m.log.WithFields(logrus.Fields{"target": target, "epoch": s.epoch})
	log.Infof("开始观看 (%s)", m.provider.Name())

	conn, err := m.provider.NewUpstream(target, m.listener(s.epoch))
	if err != nil {
		defer m.wg.Done()
		m.connectFailed(s, nil, err)
		return nil
	}

	m.mutex.Lock()
	s.conn = conn
	m.mutex.Unlock()

	go m.connect(s, conn)
	return nil
}

func (m *Manager) connect(s *session, conn Upstream) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	info, err := conn.Connect(ctx)
	cancel()

	log := m.log.WithFields(logrus.Fields{"target": s.target, "epoch": s.epoch})

	m.mutex.Lock()
	if !m.isCurrentLocked(s.epoch) {
		m.mutex.Unlock()
		// 连接期间已被替换或停止，由这里负责释放
		log.Info("连接已过期，断开")
		m.disconnect(conn)
		return
	}
	if err != nil {
		m.mutex.Unlock()
		m.connectFailed(s, conn, err)
		return
	}
	s.state = StateLive
	s.roomID = info.RoomID
	m.mutex.Unlock()

	log.Infof("已连接到房间 %s", info.RoomID)
	m.hub.Broadcast(model.NewInfo("Connected to room " + info.RoomID))
}

// connectFailed 清空仍为当前的会话并发出一条错误事件
func (m *Manager) connectFailed(s *session, conn Upstream, err error) {
	m.mutex.Lock()
	current := m.isCurrentLocked(s.epoch)
	if current {
		m.current = nil
		s.state = StateDisconnected
	}
	m.mutex.Unlock()

	if conn != nil {
		m.disconnect(conn)
	}
	if !current {
		return
	}

	m.log.WithFields(logrus.Fields{"target": s.target, "epoch": s.epoch}).Errorf("连接失败: %v", err)
	m.hub.Broadcast(model.NewError("Failed to connect to live for " + s.target))
}

func (m *Manager) listener(epoch uint64) Listener {
	return func(ev Event) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("处理上游事件 %s 时发生异常: %v", ev.Kind, r)
			}
		}()
		m.handleEvent(epoch, ev)
	}
}

func (m *Manager) handleEvent(epoch uint64, ev Event) {
	m.mutex.Lock()
	if !m.isCurrentLocked(epoch) {
		m.mutex.Unlock()
		m.log.WithField("epoch", epoch).Debugf("丢弃过期会话事件 %s", ev.Kind)
		return
	}
	s := m.current

	switch ev.Kind {
	case EventConnected:
		s.state = StateLive
		if ev.RoomID != "" {
			s.roomID = ev.RoomID
		}
		roomID := s.roomID
		m.mutex.Unlock()
		m.hub.Broadcast(model.NewInfo("Connected to room " + roomID))

	case EventDisconnected, EventError:
		m.current = nil
		s.state = StateDisconnected
		conn := s.conn
		m.mutex.Unlock()

		if conn != nil {
			m.disconnect(conn)
		}

		log := m.log.WithFields(logrus.Fields{"target": s.target, "epoch": s.epoch})
		if ev.Kind == EventError {
			log.Errorf("上游错误: %v", ev.Err)
			m.hub.Broadcast(model.NewError("Live connection error for " + s.target))
			return
		}
		log.Warnf("上游断开: %v", ev.Err)
		m.hub.Broadcast(model.NewInfo("Disconnected from live"))

	default:
		m.mutex.Unlock()

		h, ok := m.handlers[ev.Kind]
		if !ok {
			return
		}
		out, emit := h.Normalize(ev.Payload)
		if !emit {
			return
		}
		m.logEvent(out)
		m.hub.Broadcast(out)
	}
}

func (m *Manager) logEvent(ev model.Event) {
	switch e := ev.(type) {
	case model.Gift:
		m.log.Infof("礼物: %s x%d 来自 %s", e.Gift, e.Count, e.From)
	case model.Comment:
		m.log.Infof("评论: %s: %s", e.From, e.Text)
	default:
		m.log.Debugf("事件: %s", ev.EventType())
	}
}

// Stop 释放当前会话，返回之前是否存在会话
func (m *Manager) Stop() bool {
	m.mutex.Lock()
	if m.current == nil {
		m.mutex.Unlock()
		return false
	}
	old := m.detachLocked()
	m.mutex.Unlock()

	m.release(old)
	return true
}

// ReleaseOwner owner 是当前会话的发起者时释放会话
func (m *Manager) ReleaseOwner(owner string) bool {
	m.mutex.Lock()
	if owner == "" || m.current == nil || m.current.owner != owner {
		m.mutex.Unlock()
		return false
	}
	old := m.detachLocked()
	m.mutex.Unlock()

	m.release(old)
	return true
}

// IsWatching 当前会话（连接中或直播中）是否观看 target
func (m *Manager) IsWatching(target string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current != nil && m.current.target == strings.TrimSpace(target)
}

func (m *Manager) Snapshot() Snapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current == nil {
		return Snapshot{State: StateIdle, Epoch: m.epoch}
	}
	s := m.current
	return Snapshot{
		State:  s.state,
		Target: s.target,
		Owner:  s.owner,
		RoomID: s.roomID,
		Epoch:  s.epoch,
	}
}

// Close 停止当前会话并等待进行中的连接结束，之后不再接受观看
func (m *Manager) Close() {
	m.mutex.Lock()
	m.cancel()
	m.mutex.Unlock()

	m.Stop()
	m.wg.Wait()
	m.log.Info("上游会话已关闭")
}

func (m *Manager) isCurrentLocked(epoch uint64) bool {
	return m.current != nil && m.current.epoch == epoch
}

// detachLocked 清空当前会话，返回需要立即释放的会话。
// 连接中的会话由 connect 在连接结果返回后释放。
func (m *Manager) detachLocked() *session {
	s := m.current
	m.current = nil
	if s == nil {
		return nil
	}

	connecting := s.state == StateConnecting
	s.state = StateDisconnected
	if connecting {
		return nil
	}
	return s
}

func (m *Manager) release(s *session) {
	if s == nil || s.conn == nil {
		return
	}
	m.log.WithFields(logrus.Fields{"target": s.target, "epoch": s.epoch}).Info("断开当前会话")
	m.disconnect(s.conn)
}

func (m *Manager) disconnect(conn Upstream) {
	if err := conn.Disconnect(); err != nil {
		m.log.Warnf("断开上游失败: %v", err)
	}
}
