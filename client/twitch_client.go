package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"live-relay/config"
	"live-relay/utils"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// TwitchProvider 以匿名身份观看 Twitch 频道聊天
type TwitchProvider struct{}

func NewTwitchProvider() *TwitchProvider {
	return &TwitchProvider{}
}

func (p *TwitchProvider) Name() string {
	return config.ProviderTwitch
}

// NewUpstream 观看目标为频道名，可带 # 前缀
func (p *TwitchProvider) NewUpstream(target string, listener Listener) (Upstream, error) {
	channel := normalizeChannel(target)
	if channel == "" || strings.ContainsAny(channel, " ,#") {
		return nil, fmt.Errorf("%w: 频道 %q", ErrInvalidTarget, target)
	}
	return NewTwitchClient(channel, listener), nil
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

type TwitchClient struct {
	channel  string
	client   *twitchirc.Client
	listener Listener
	log      *logrus.Entry

	ready     chan struct{}
	readyOnce sync.Once
	connected bool
	closed    bool
	mutex     sync.Mutex
}

func NewTwitchClient(channel string, listener Listener) *TwitchClient {
	irc := twitchirc.NewAnonymousClient()

	c := &TwitchClient{
		channel:  channel,
		client:   irc,
		listener: listener,
		log:      utils.Component("twitch").WithField("channel", channel),
		ready:    make(chan struct{}),
	}

	irc.OnConnect(c.onConnect)

	irc.OnPrivateMessage(func(m twitchirc.PrivateMessage) {
		for _, ev := range privateMessageEvents(m) {
			c.emit(ev)
		}
	})

	irc.OnUserNoticeMessage(func(m twitchirc.UserNoticeMessage) {
		if ev, ok := userNoticeEvent(m); ok {
			c.emit(ev)
		}
	})

	irc.OnReconnectMessage(func(message twitchirc.ReconnectMessage) {
		c.log.Info("服务器要求重连")
	})

	return c
}

// Connect 连接 IRC 并加入频道。go-twitch-irc 自带断线重连，Connect 返回即视为会话结束
func (c *TwitchClient) Connect(ctx context.Context) (RoomInfo, error) {
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.client.Connect()
	}()

	select {
	case <-c.ready:
		c.mutex.Lock()
		if c.closed {
			c.mutex.Unlock()
			return RoomInfo{}, ErrClosed
		}
		c.connected = true
		c.mutex.Unlock()

		c.log.Info("已加入频道")
		go c.wait(errCh)
		return RoomInfo{RoomID: c.channel}, nil
	case err := <-errCh:
		return RoomInfo{}, fmt.Errorf("连接 twitch: %w", err)
	case <-ctx.Done():
		c.Disconnect()
		return RoomInfo{}, fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
	}
}

// onConnect 首次连接时通知 Connect，之后的自动重连上报 EventConnected
func (c *TwitchClient) onConnect() {
	c.mutex.Lock()
	closed, reconnected := c.closed, c.connected
	c.mutex.Unlock()

	if closed {
		c.client.Disconnect()
		return
	}
	c.client.Join(c.channel)
	c.readyOnce.Do(func() { close(c.ready) })

	if reconnected {
		c.log.Info("已重新连接")
		c.listener(Event{Kind: EventConnected, RoomID: c.channel})
	}
}

func (c *TwitchClient) wait(errCh <-chan error) {
	err := <-errCh

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	c.mutex.Unlock()

	c.log.Warnf("连接断开: %v", err)
	c.listener(Event{Kind: EventDisconnected, Err: err})
}

func (c *TwitchClient) emit(ev Event) {
	c.mutex.Lock()
	live := c.connected && !c.closed
	c.mutex.Unlock()

	if live {
		c.listener(ev)
	}
}

// Disconnect 主动断开，不会上报 EventDisconnected
func (c *TwitchClient) Disconnect() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mutex.Unlock()

	// 尚未连上时 Disconnect 会返回错误，OnConnect 中会再次断开
	if err := c.client.Disconnect(); err != nil {
		c.log.Debugf("断开连接: %v", err)
	}
	return nil
}

// privateMessageEvents 聊天消息转为评论，带 bits 的消息额外产生礼物
func privateMessageEvents(m twitchirc.PrivateMessage) []Event {
	var events []Event

	if strings.TrimSpace(m.Message) != "" {
		events = append(events, Event{Kind: EventChat, Payload: payload(map[string]any{
			"uniqueId": m.User.Name,
			"nickname": m.User.DisplayName,
			"comment":  m.Message,
		})})
	}

	if m.Bits > 0 {
		events = append(events, Event{Kind: EventGift, Payload: payload(map[string]any{
			"uniqueId":    m.User.Name,
			"giftName":    "Bits",
			"repeatCount": m.Bits,
		})})
	}

	return events
}

// userNoticeEvent 订阅类通知转为礼物，raid 转为分享
func userNoticeEvent(m twitchirc.UserNoticeMessage) (Event, bool) {
	user := m.User.Name

	switch m.MsgID {
	case "sub", "resub":
		return Event{Kind: EventGift, Payload: payload(map[string]any{
			"uniqueId":    user,
			"giftName":    "Sub",
			"repeatCount": 1,
		})}, true
	case "subgift", "anonsubgift":
		return Event{Kind: EventGift, Payload: payload(map[string]any{
			"uniqueId":    user,
			"giftName":    "Gift Sub",
			"repeatCount": 1,
		})}, true
	case "submysterygift":
		count, _ := strconv.Atoi(m.MsgParams["msg-param-mass-gift-count"])
		return Event{Kind: EventGift, Payload: payload(map[string]any{
			"uniqueId":    user,
			"giftName":    "Gift Sub",
			"repeatCount": count,
		})}, true
	case "raid":
		return Event{Kind: EventShare, Payload: payload(map[string]any{
			"uniqueId": user,
		})}, true
	}

	return Event{}, false
}

func payload(fields map[string]any) gjson.Result {
	data, err := json.Marshal(fields)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}
