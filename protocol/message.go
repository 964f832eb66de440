package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// 消息命令常量
const (
	CmdDanmu        = "DANMU_MSG"          // 弹幕消息
	CmdGift         = "SEND_GIFT"          // 礼物消息
	CmdComboSend    = "COMBO_SEND"         // 连击
	CmdSuperChat    = "SUPER_CHAT_MESSAGE" // SC消息
	CmdInteract     = "INTERACT_WORD"      // 进房/关注/分享
	CmdLikeClick    = "LIKE_INFO_V3_CLICK" // 点赞
	CmdOnlineCount  = "ONLINE_RANK_COUNT"  // 在线人数
	CmdRoomChange   = "ROOM_CHANGE"        // 房间信息变更
	CmdPreparing    = "PREPARING"          // 下播
	CmdWelcomeGuard = "WELCOME_GUARD"      // 舰长进入
)

// INTERACT_WORD 的 msg_type
const (
	InteractEnter  = 1
	InteractFollow = 2
	InteractShare  = 3
)

var (
	ErrInvalidJSON = errors.New("消息格式错误：不是合法的JSON")
	ErrMissingCmd  = errors.New("消息格式错误：缺少cmd字段")
)

// ParseMessage 解析消息，返回去掉后缀的 cmd 与完整消息
func ParseMessage(data []byte) (string, gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return "", gjson.Result{}, ErrInvalidJSON
	}

	result := gjson.ParseBytes(data)

	cmd := result.Get("cmd").String()
	if i := strings.IndexByte(cmd, ':'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", gjson.Result{}, ErrMissingCmd
	}

	return cmd, result, nil
}

// BuildAuthMessage 构建认证消息
func BuildAuthMessage(roomID int, token string) []byte {
	authMsg := map[string]interface{}{
		"roomid":    roomID,
		"protover":  VersionZlib,
		"platform":  "web",
		"clientver": "1.4.0",
		"type":      2,
	}

	if token != "" {
		authMsg["key"] = token
	}

	data, _ := json.Marshal(authMsg)
	return data
}
