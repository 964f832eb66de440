package handler

import (
	"live-relay/model"

	"github.com/tidwall/gjson"
)

type FollowHandler struct{}

func (FollowHandler) Normalize(raw gjson.Result) (model.Event, bool) {
	return guard("follow", model.NewError("Failed to decode upstream follow"), func() (model.Event, bool) {
		return model.NewFollow(userFrom(raw)), true
	})
}

type ShareHandler struct{}

func (ShareHandler) Normalize(raw gjson.Result) (model.Event, bool) {
	return guard("share", model.NewError("Failed to decode upstream share"), func() (model.Event, bool) {
		return model.NewShare(userFrom(raw)), true
	})
}

// LikeHandler 点赞数缺失时按一次点赞计
type LikeHandler struct{}

func (LikeHandler) Normalize(raw gjson.Result) (model.Event, bool) {
	return guard("like", model.NewError("Failed to decode upstream like"), func() (model.Event, bool) {
		return model.NewLike(userFrom(raw), countFrom(raw, likeFields)), true
	})
}
