package handler

import (
	"live-relay/model"

	"github.com/tidwall/gjson"
)

// DanmuHandler 处理弹幕/评论
type DanmuHandler struct{}

func (DanmuHandler) Normalize(raw gjson.Result) (model.Event, bool) {
	return guard("comment", model.NewError("Failed to decode upstream comment"), func() (model.Event, bool) {
		text := textFrom(raw, commentFields)
		comment := model.NewComment(text, userFrom(raw))
		return comment, text != ""
	})
}
