package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"live-relay/auth"
	"live-relay/config"
	"live-relay/protocol"
	"live-relay/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	writeTimeout       = 10 * time.Second
	defaultAuthTimeout = 15 * time.Second
)

// BilibiliProvider 通过弹幕服务器观看 B 站直播间
type BilibiliProvider struct {
	url        string
	cookiePath string
	heartbeat  time.Duration
}

func NewBilibiliProvider(cfg *config.Config) *BilibiliProvider {
	return &BilibiliProvider{
		url:        cfg.DanmuURL,
		cookiePath: cfg.CookiePath,
		heartbeat:  cfg.HeartbeatInterval,
	}
}

func (p *BilibiliProvider) Name() string {
	return config.ProviderBilibili
}

// NewUpstream 观看目标为直播间号
func (p *BilibiliProvider) NewUpstream(target string, listener Listener) (Upstream, error) {
	roomID, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil || roomID <= 0 {
		return nil, fmt.Errorf("%w: 直播间号 %q", ErrInvalidTarget, target)
	}
	return NewDanmuClient(roomID, p.url, p.cookiePath, p.heartbeat, listener), nil
}

type DanmuClient struct {
	roomID     int
	url        string
	cookiePath string
	heartbeat  time.Duration
	listener   Listener
	log        *logrus.Entry

	conn      *websocket.Conn
	done      chan struct{}
	handlers  map[string]func(gjson.Result)
	connected bool
	closed    bool
	mutex     sync.RWMutex
	writeMu   sync.Mutex
}

func NewDanmuClient(roomID int, url, cookiePath string, heartbeat time.Duration, listener Listener) *DanmuClient {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	client := &DanmuClient{
		roomID:     roomID,
		url:        url,
		cookiePath: cookiePath,
		heartbeat:  heartbeat,
		listener:   listener,
		log:        utils.Component("bilibili").WithField("room", roomID),
		done:       make(chan struct{}),
		handlers:   make(map[string]func(gjson.Result)),
	}

	// 注册消息处理器
	client.registerHandlers()

	return client
}

func (c *DanmuClient) registerHandlers() {
	c.handlers[protocol.CmdDanmu] = func(msg gjson.Result) {
		c.emit(EventChat, msg)
	}
	c.handlers[protocol.CmdSuperChat] = func(msg gjson.Result) {
		c.emit(EventChat, msg.Get("data"))
	}
	c.handlers[protocol.CmdGift] = func(msg gjson.Result) {
		c.emit(EventGift, msg.Get("data"))
	}
	c.handlers[protocol.CmdComboSend] = func(msg gjson.Result) {
		c.emit(EventGift, msg.Get("data"))
	}
	c.handlers[protocol.CmdInteract] = func(msg gjson.Result) {
		data := msg.Get("data")
		switch data.Get("msg_type").Int() {
		case protocol.InteractFollow:
			c.emit(EventFollow, data)
		case protocol.InteractShare:
			c.emit(EventShare, data)
		}
	}
	c.handlers[protocol.CmdLikeClick] = func(msg gjson.Result) {
		c.emit(EventLike, msg.Get("data"))
	}
	c.handlers[protocol.CmdPreparing] = func(gjson.Result) {
		c.log.Info("主播已下播")
	}
}

// Connect 建立连接并等待认证回应
func (c *DanmuClient) Connect(ctx context.Context) (RoomInfo, error) {
	// 设置请求头
	headers := http.Header{}
	headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	headers.Set("Origin", "https://live.bilibili.com")

	// 添加Cookie
	if cookieStr := auth.GetCookieString(c.cookiePath); cookieStr != "" {
		headers.Set("Cookie", cookieStr)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, headers)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("连接弹幕服务器: %w", err)
	}

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		conn.Close()
		return RoomInfo{}, ErrClosed
	}
	c.conn = conn
	c.mutex.Unlock()

	if err := c.authenticate(ctx); err != nil {
		conn.Close()
		return RoomInfo{}, err
	}

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return RoomInfo{}, ErrClosed
	}
	c.connected = true
	c.mutex.Unlock()

	c.log.Info("连接成功")

	// 启动心跳
	go c.heartbeatLoop()

	// 启动消息接收
	go c.readMessages()

	return RoomInfo{RoomID: strconv.Itoa(c.roomID)}, nil
}

// authenticate 发送认证包，直到收到连接成功回应
func (c *DanmuClient) authenticate(ctx context.Context) error {
	token := auth.GenerateToken(c.cookiePath, c.roomID)
	if err := c.writePacket(protocol.NewAuthPacket(c.roomID, token)); err != nil {
		return fmt.Errorf("发送认证包: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultAuthTimeout)
	}
	c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return fmt.Errorf("%w: 等待认证回应", ErrConnectTimeout)
			}
			return fmt.Errorf("等待认证回应: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		packet, err := protocol.DecodePacket(data)
		if err != nil {
			return err
		}
		if packet.Operation != protocol.OpConnect {
			continue
		}
		if code := gjson.GetBytes(packet.Body, "code"); code.Exists() && code.Int() != 0 {
			return fmt.Errorf("认证失败: code=%d", code.Int())
		}
		return c.conn.SetReadDeadline(time.Time{})
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}

func (c *DanmuClient) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected
}

func (c *DanmuClient) writePacket(packet *protocol.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, packet.Encode())
}

func (c *DanmuClient) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writePacket(protocol.NewHeartbeatPacket()); err != nil {
				c.log.Errorf("发送心跳失败: %v", err)
				c.drop(EventError, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *DanmuClient) readMessages() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.drop(EventDisconnected, err)
			return
		}

		if messageType == websocket.BinaryMessage {
			c.handleBinaryMessage(data)
		}
	}
}

func (c *DanmuClient) handleBinaryMessage(data []byte) {
	packets, err := protocol.SplitPackets(data)
	if err != nil {
		c.log.Errorf("解析数据包失败: %v", err)
		return
	}

	for _, p := range packets {
		expanded, err := protocol.Expand(p)
		if err != nil {
			c.log.Errorf("解压数据包失败: %v", err)
		}
		for _, packet := range expanded {
			switch packet.Operation {
			case protocol.OpHeartbeatReply:
				// 心跳回应，包含在线人数
				if len(packet.Body) >= 4 {
					onlineCount := int32(packet.Body[0])<<24 | int32(packet.Body[1])<<16 |
						int32(packet.Body[2])<<8 | int32(packet.Body[3])
					c.log.Debugf("在线人数: %d", onlineCount)
				}
			case protocol.OpMessage:
				c.handleMessage(packet.Body)
			}
		}
	}
}

func (c *DanmuClient) handleMessage(data []byte) {
	cmd, msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.log.Debugf("解析消息失败: %v", err)
		return
	}

	if handle, exists := c.handlers[cmd]; exists {
		handle(msg)
	}
}

func (c *DanmuClient) emit(kind EventKind, payload gjson.Result) {
	if !c.IsConnected() {
		return
	}
	c.listener(Event{Kind: kind, Payload: payload})
}

// drop 连接意外断开，只上报一次。心跳失败按 EventError 上报
func (c *DanmuClient) drop(kind EventKind, reason error) {
	if !c.shutdown() {
		return
	}
	c.log.Warnf("连接断开: %v", reason)
	c.listener(Event{Kind: kind, Err: reason})
}

// shutdown 关闭连接，返回是否由本次调用关闭
func (c *DanmuClient) shutdown() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}

	c.closed = true
	c.connected = false
	close(c.done)

	if c.conn != nil {
		c.conn.Close()
	}
	return true
}

// Disconnect 主动断开，不会上报 EventDisconnected
func (c *DanmuClient) Disconnect() error {
	if c.shutdown() {
		c.log.Info("已断开")
	}
	return nil
}
