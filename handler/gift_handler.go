package handler

import (
	"live-relay/model"

	"github.com/tidwall/gjson"
)

type GiftHandler struct{}

// Normalize 总是返回完整的礼物事件；礼物名缺失时不下发，解析异常时下发占位礼物
func (GiftHandler) Normalize(raw gjson.Result) (model.Event, bool) {
	return guard("gift", model.PlaceholderGift(), func() (model.Event, bool) {
		token, ok := firstPresent(raw, giftNameFields)
		if !ok {
			return model.PlaceholderGift(), false
		}

		name, ok := ResolveGiftName(token.String())
		if !ok {
			return model.PlaceholderGift(), false
		}

		return model.NewGift(name, countFrom(raw, giftCountFields), userFrom(raw)), true
	})
}

// TestGift 构造订阅者测试命令使用的礼物事件
func TestGift(gift string, count gjson.Result, from string) model.Gift {
	name, ok := ResolveGiftName(gift)
	if !ok {
		name = model.UnknownGift
	}
	return model.NewGift(name, CoerceCount(count), from)
}
