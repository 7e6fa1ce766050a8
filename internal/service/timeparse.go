package service

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ── 提醒时刻回复解析 ──────────────────────────────────────
//
// 患者回复一个钟点（可带分钟、可带 am/pm 后缀）表示想调整提醒时间。
// 纯函数，与会话状态无关。
//
// 两种固定格式：
//   H[:MM][am|pm]   如 "8:30pm"、"14:00"
//   H[am|pm]        如 "8am"、"14"
//
// 规则：小时 ≥ 24 或分钟 ≥ 60 拒绝；小时 > 12 且带 am/pm 后缀拒绝
// （"13pm" 含义不明）；pm 对小于 12 的小时 +12；无后缀的裸小时按
// 24 小时制理解（"14" 即 14:00）。
// ─────────────────────────────────────────────────────────

var (
	// ErrNotTimeOfDay 回复不是钟点格式
	ErrNotTimeOfDay = errors.New("不是钟点格式")
	// ErrInvalidTimeOfDay 钟点格式但数值非法
	ErrInvalidTimeOfDay = errors.New("钟点数值非法")

	timeWithMinutes = regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)?$`)
	timeHourOnly    = regexp.MustCompile(`^(\d{1,2})(am|pm)?$`)
)

// ParseTimeOfDay 解析钟点回复，返回 24 小时制的时与分
func ParseTimeOfDay(reply string) (hour, minute int, err error) {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.ReplaceAll(s, " ", "")

	var suffix string
	if m := timeWithMinutes.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		suffix = m[3]
	} else if m := timeHourOnly.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		suffix = m[2]
	} else {
		return 0, 0, ErrNotTimeOfDay
	}

	if hour >= 24 || minute >= 60 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	if suffix != "" && hour > 12 {
		// "13pm" 之类歧义输入一律拒绝
		return 0, 0, ErrInvalidTimeOfDay
	}
	if suffix == "pm" && hour < 12 {
		hour += 12
	}
	if suffix == "am" && hour == 12 {
		hour = 0
	}

	return hour, minute, nil
}
