package utils

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xeonx/timeago"
)

// MaxMessageLength bounds chat and ticket message bodies.
const MaxMessageLength = 4096

// 生成随机 ID
func GenerateID() string {
	return uuid.NewString()
}

// 生成 WebSocket 客户端 ID
func GenerateClientID() string {
	return "client_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// RelativeTime renders t relative to ref, e.g. "3 days ago".
func RelativeTime(t, ref time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timeago.NoMax(timeago.English).FormatReference(t, ref)
}

// 验证消息内容
func ValidateMessage(content string) bool {
	content = strings.TrimSpace(content)
	return content != "" && utf8.RuneCountInString(content) <= MaxMessageLength
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimRight(string(r[:n-3]), " ") + "..."
}

// Initials returns up to two upper-case initials of a display name.
func Initials(name string) string {
	var b strings.Builder
	for _, f := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(f)
		b.WriteString(strings.ToUpper(string(r)))
		if b.Len() >= 2 {
			break
		}
	}
	return b.String()
}
