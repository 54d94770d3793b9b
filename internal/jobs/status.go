package jobs

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

// NormalizeStatus 首字母大写其余小写，如 open、OPEN 均得到 Open。
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s)
	return upper.String(s[:size]) + lower.String(s[size:])
}

var deadlineLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// deadlinePassed 判断截止时间是否早于 now；仅日期时截止到当天结束。
func deadlinePassed(deadline string, now time.Time) (bool, bool) {
	deadline = strings.TrimSpace(deadline)
	if deadline == "" {
		return false, false
	}
	for _, layout := range deadlineLayouts {
		t, err := time.Parse(layout, deadline)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.AddDate(0, 0, 1)
			return !now.Before(t), true
		}
		return t.Before(now), true
	}
	return false, false
}
