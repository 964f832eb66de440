package handler

import (
	"live-relay/model"
	"live-relay/utils"

	"github.com/tidwall/gjson"
)

// Normalizer 将上游原始负载转换为规范事件。
// 返回的事件总是字段完整的；第二个返回值表示该事件是否应当下发。
type Normalizer interface {
	Normalize(raw gjson.Result) (model.Event, bool)
}

// guard 捕获解析过程中的 panic，用 fallback 代替
func guard(kind string, fallback model.Event, fn func() (model.Event, bool)) (ev model.Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			utils.Component("normalizer").WithField("kind", kind).Warnf("解析上游事件异常: %v", r)
			ev, ok = fallback, true
		}
	}()
	return fn()
}
