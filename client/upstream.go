package client

import (
	"context"
	"errors"

	"live-relay/config"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidTarget  = errors.New("无效的观看目标")
	ErrNotConnected   = errors.New("连接未建立或已断开")
	ErrConnectTimeout = errors.New("连接超时")
	ErrClosed         = errors.New("连接已关闭")

	ErrAlreadyWatching = errors.New("已在观看该目标")
)

// EventKind 上游事件类别
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventGift
	EventChat
	EventFollow
	EventShare
	EventLike
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventGift:
		return "gift"
	case EventChat:
		return "chat"
	case EventFollow:
		return "follow"
	case EventShare:
		return "share"
	case EventLike:
		return "like"
	default:
		return "unknown"
	}
}

// Event 上游连接上报的事件
type Event struct {
	Kind    EventKind
	Payload gjson.Result // gift/chat/follow/share/like 的原始负载
	RoomID  string       // EventConnected
	Err     error        // EventDisconnected/EventError 的原因
}

// Listener 接收上游事件，可能在任意 goroutine 中调用
type Listener func(Event)

// RoomInfo 上游确认连接后返回的房间信息
type RoomInfo struct {
	RoomID string
}

// Upstream 一条上游直播连接。
// Connect 阻塞直到上游确认房间或失败，连接失败只通过返回值报告，不会再触发 EventError。
// Disconnect 可以重复调用，也可以在 Connect 返回前调用。
type Upstream interface {
	Connect(ctx context.Context) (RoomInfo, error)
	Disconnect() error
}

// Provider 为观看目标创建上游连接
type Provider interface {
	Name() string
	NewUpstream(target string, listener Listener) (Upstream, error)
}

// NewProvider 按配置选择上游
func NewProvider(cfg *config.Config) Provider {
	switch cfg.Provider {
	case config.ProviderTwitch:
		return NewTwitchProvider()
	case config.ProviderMock:
		return NewMockProvider(cfg.MockInterval)
	default:
		return NewBilibiliProvider(cfg)
	}
}
