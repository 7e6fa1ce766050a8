package service

import (
	"time"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// ── 节奏推进 ──────────────────────────────────────────────
//
// 送达后把循环通知的 send_at 推进到“现在”之后的下一个应发时刻。
//
// 规则：
//   - 日/周节奏按固定 24h / 7d 叠加，保留原始的一天中时刻
//     （绝不直接取 now+24h，否则错过的周期会让时刻漂移）
//   - 月/年节奏按真实日历推进；目标月没有锚定日时钳制到当月最后一天
//     （锚定日以本次推进的起点为准，单次补齐内不漂移）
//   - 送达延迟时叠加多个周期，结果严格晚于 now，绝不落在过去
// ─────────────────────────────────────────────────────────

// NextSendTime 计算循环通知的下一个发送时刻
// cadence 为 NONE 或未知时原样返回（由调用方负责停用）
func NextSendTime(cadence string, current, now time.Time) time.Time {
	switch cadence {
	case model.CadenceDaily:
		return advanceByFixed(current, 24*time.Hour, now)
	case model.CadenceWeekly:
		return advanceByFixed(current, 7*24*time.Hour, now)
	case model.CadenceMonthly:
		return advanceByMonths(current, 1, now)
	case model.CadenceYearly:
		return advanceByMonths(current, 12, now)
	default:
		return current
	}
}

// advanceByFixed 以固定步长叠加，直到严格晚于 now
// 准点送达时恰好叠加一次
func advanceByFixed(current time.Time, step time.Duration, now time.Time) time.Time {
	next := current.Add(step)
	for !next.After(now) {
		next = next.Add(step)
	}
	return next
}

// advanceByMonths 以日历月为步长叠加，直到严格晚于 now
// 每个候选都从同一锚点推算，钳制不会在补齐循环内累积漂移
func advanceByMonths(anchor time.Time, step int, now time.Time) time.Time {
	for k := 1; ; k++ {
		next := addMonthsClamped(anchor, k*step)
		if next.After(now) {
			return next
		}
	}
}

// addMonthsClamped 推进 months 个日历月，锚定日超出目标月时钳制到月末
// （1/31 + 1月 → 2/28|29，而不是滚入 3 月）
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// ── 到期判定 ──

// dueWindow 返回以 at 为中心、前后各 window 的到期区间
// 窗口补偿外部周期触发的抖动；投递周期推进超过窗口时每条通知至多取件一次
func dueWindow(at time.Time, window time.Duration) (time.Time, time.Time) {
	return at.Add(-window), at.Add(window)
}
