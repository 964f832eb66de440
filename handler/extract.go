package handler

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// extractor 从原始负载中取出一个候选字段
type extractor func(raw gjson.Result) gjson.Result

func at(path string) extractor {
	return func(raw gjson.Result) gjson.Result {
		return raw.Get(path)
	}
}

func candidates(paths ...string) []extractor {
	list := make([]extractor, 0, len(paths))
	for _, p := range paths {
		list = append(list, at(p))
	}
	return list
}

// 各逻辑字段的候选位置，按优先级排列
var (
	userFields = candidates(
		"uniqueId",
		"user.uniqueId",
		"uname",
		"user.nickname",
		"nickname",
		"user_info.uname", // SUPER_CHAT_MESSAGE
		"info.2.1",        // DANMU_MSG
	)
	giftNameFields = candidates(
		"gift.name",
		"giftName",
		"extendedGiftInfo.name",
		"giftDetails.giftName",
		"giftId",
		"gift.id",
	)
	giftCountFields = candidates(
		"repeat_count",
		"repeatCount",
		"num",
		"combo_num",
		"gift.repeat_count",
	)
	commentFields = candidates(
		"comment",
		"msg",
		"text",
		"content",
		"message",
		"info.1", // DANMU_MSG
	)
	likeFields = candidates(
		"likeCount",
		"likes",
		"like_count",
		"count",
	)
)

// firstPresent 返回第一个存在且非空的标量
func firstPresent(raw gjson.Result, list []extractor) (gjson.Result, bool) {
	for _, get := range list {
		v := get(raw)
		if present(v) {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func present(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str) != ""
	case gjson.Number:
		return true
	default:
		return false
	}
}

func textFrom(raw gjson.Result, list []extractor) string {
	if v, ok := firstPresent(raw, list); ok {
		return strings.TrimSpace(v.String())
	}
	return ""
}

func userFrom(raw gjson.Result) string {
	return textFrom(raw, userFields)
}

// positiveInt 解析并校验数值字段，小于 1 或非数字视为缺失
func positiveInt(v gjson.Result) (int, bool) {
	var n float64
	switch v.Type {
	case gjson.Number:
		n = v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) || n < 1 {
		return 0, false
	}
	if n > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(n), true
}

// countFrom 取第一个存在且非 null 的候选字段，无效值按 1 处理
func countFrom(raw gjson.Result, list []extractor) int {
	for _, get := range list {
		if v := get(raw); v.Exists() && v.Type != gjson.Null {
			return CoerceCount(v)
		}
	}
	return 1
}

// CoerceCount 将任意值转换为礼物数量，无效值按 1 处理
func CoerceCount(v gjson.Result) int {
	if n, ok := positiveInt(v); ok {
		return n
	}
	return 1
}
