package protocol

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// 订阅者命令
const (
	CommandWatch       = "watch"
	CommandTest        = "test"
	CommandTestComment = "test_comment"
	CommandPing        = "ping"
	CommandStatus      = "status"
)

var ErrMalformedCommand = errors.New("无法解析的订阅者消息")

// Command 订阅者发来的命令，未识别的命令 Name 保留原值
type Command struct {
	Name     string
	Username string
	Gift     string
	Count    gjson.Result
	From     string
	Text     string
}

// ParseCommand 解析订阅者消息；只有非法 JSON 返回错误
func ParseCommand(data []byte) (Command, error) {
	if !gjson.ValidBytes(data) {
		return Command{}, ErrMalformedCommand
	}

	msg := gjson.ParseBytes(data)
	if !msg.IsObject() {
		return Command{}, nil
	}

	return Command{
		Name:     msg.Get("cmd").String(),
		Username: scalar(msg.Get("username")),
		Gift:     scalar(msg.Get("gift")),
		Count:    msg.Get("count"),
		From:     scalar(msg.Get("from")),
		Text:     scalar(msg.Get("text")),
	}, nil
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}
