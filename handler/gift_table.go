package handler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 礼物 ID 到展示名的映射，进程内只读
var giftNames = map[string]string{
	"5655":  "Rose",
	"7934":  "Hearts",
	"5269":  "TikTok",
	"5879":  "Doughnut",
	"5658":  "Heart Me",
	"15232": "You are awesome",
	"5660":  "Hand Hearts",
	"8913":  "Rosa",
	"6064":  "GG",
}

// ResolveGiftName 解析礼物展示名。
// 依次尝试原始键、整数键，最后返回首字母大写的原始值；输入为空时返回 false。
func ResolveGiftName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", false
	}

	if display, ok := giftNames[name]; ok {
		return display, true
	}

	if id, ok := leadingInt(name); ok {
		if display, ok := giftNames[strconv.Itoa(id)]; ok {
			return display, true
		}
	}

	return capitalize(name), true
}

// leadingInt 解析字符串开头的十进制整数
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
