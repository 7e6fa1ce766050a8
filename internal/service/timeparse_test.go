package service

import (
	"errors"
	"testing"
)

func TestParseTimeOfDay_Valid(t *testing.T) {
	cases := []struct {
		reply  string
		hour   int
		minute int
	}{
		{"8:30pm", 20, 30},
		{"8:30am", 8, 30},
		{"14:00", 14, 0},
		{"8am", 8, 0},
		{"8pm", 20, 0},
		{"14", 14, 0},
		{"12pm", 12, 0}, // 正午
		{"12am", 0, 0},  // 午夜
		{"0:05", 0, 5},
		{" 9:15 PM ", 21, 15}, // 空白与大小写归一
		{"23:59", 23, 59},
	}

	for _, tc := range cases {
		hour, minute, err := ParseTimeOfDay(tc.reply)
		if err != nil {
			t.Errorf("%q 应解析成功: %v", tc.reply, err)
			continue
		}
		if hour != tc.hour || minute != tc.minute {
			t.Errorf("%q 期望 %02d:%02d，实际 %02d:%02d", tc.reply, tc.hour, tc.minute, hour, minute)
		}
	}
}

func TestParseTimeOfDay_NotTime(t *testing.T) {
	// 非钟点格式：调用方应继续按普通文本处理
	for _, reply := range []string{"是", "没有", "abc", "8:30:00", "明天", "", "a"} {
		_, _, err := ParseTimeOfDay(reply)
		if !errors.Is(err, ErrNotTimeOfDay) {
			t.Errorf("%q 期望 ErrNotTimeOfDay，实际 %v", reply, err)
		}
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	// 钟点格式但数值非法：调用方应提示重新输入
	for _, reply := range []string{"25:00", "12:60", "13pm", "24", "99"} {
		_, _, err := ParseTimeOfDay(reply)
		if !errors.Is(err, ErrInvalidTimeOfDay) {
			t.Errorf("%q 期望 ErrInvalidTimeOfDay，实际 %v", reply, err)
		}
	}
}
