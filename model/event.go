package model

// Type 事件类型，序列化为 type 字段
type Type string

const (
	TypeGift     Type = "gift"
	TypeComment  Type = "comment"
	TypeFollow   Type = "follow"
	TypeShare    Type = "share"
	TypeLike     Type = "like"
	TypeInfo     Type = "info"
	TypeError    Type = "error"
	TypeStatus   Type = "status"
	TypePong     Type = "pong"
	TypeShutdown Type = "shutdown"
)

const (
	// UnknownGift 礼物名无法解析时的占位
	UnknownGift = "UnknownGift"
	// UnknownUser 发送者缺失时的占位
	UnknownUser = "unknown"
)

// Event 下发给订阅者的规范事件
type Event interface {
	EventType() Type
}

// 礼物消息
type Gift struct {
	Type  Type   `json:"type"`
	Gift  string `json:"gift"`
	Count int    `json:"count"`
	From  string `json:"from"`
}

// 弹幕消息
type Comment struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
	From string `json:"from"`
}

// 关注消息
type Follow struct {
	Type Type   `json:"type"`
	From string `json:"from"`
}

// 分享消息
type Share struct {
	Type Type   `json:"type"`
	From string `json:"from"`
}

// 点赞消息
type Like struct {
	Type  Type   `json:"type"`
	From  string `json:"from"`
	Likes int    `json:"likes"`
}

type Info struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// 中继状态快照
type Status struct {
	Type            Type   `json:"type"`
	Connected       bool   `json:"connected"`
	Watching        string `json:"watching"`
	SubscriberCount int    `json:"subscriberCount"`
}

type Pong struct {
	Type Type `json:"type"`
}

type Shutdown struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func (Gift) EventType() Type     { return TypeGift }
func (Comment) EventType() Type  { return TypeComment }
func (Follow) EventType() Type   { return TypeFollow }
func (Share) EventType() Type    { return TypeShare }
func (Like) EventType() Type     { return TypeLike }
func (Info) EventType() Type     { return TypeInfo }
func (Error) EventType() Type    { return TypeError }
func (Status) EventType() Type   { return TypeStatus }
func (Pong) EventType() Type     { return TypePong }
func (Shutdown) EventType() Type { return TypeShutdown }

// NewGift 构造礼物事件，数量小于 1 时按 1 处理，空字段填充占位值
func NewGift(gift string, count int, from string) Gift {
	if gift == "" {
		gift = UnknownGift
	}
	if count < 1 {
		count = 1
	}
	return Gift{Type: TypeGift, Gift: gift, Count: count, From: orUnknown(from)}
}

// PlaceholderGift 解码彻底失败时使用的安全礼物
func PlaceholderGift() Gift {
	return NewGift(UnknownGift, 1, UnknownUser)
}

func NewComment(text, from string) Comment {
	return Comment{Type: TypeComment, Text: text, From: orUnknown(from)}
}

func NewFollow(from string) Follow {
	return Follow{Type: TypeFollow, From: orUnknown(from)}
}

func NewShare(from string) Share {
	return Share{Type: TypeShare, From: orUnknown(from)}
}

func NewLike(from string, likes int) Like {
	if likes < 1 {
		likes = 1
	}
	return Like{Type: TypeLike, From: orUnknown(from), Likes: likes}
}

func NewInfo(message string) Info {
	return Info{Type: TypeInfo, Message: message}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func NewStatus(connected bool, watching string, subscribers int) Status {
	return Status{Type: TypeStatus, Connected: connected, Watching: watching, SubscriberCount: subscribers}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

func NewShutdown(message string) Shutdown {
	return Shutdown{Type: TypeShutdown, Message: message}
}

func orUnknown(from string) string {
	if from == "" {
		return UnknownUser
	}
	return from
}
