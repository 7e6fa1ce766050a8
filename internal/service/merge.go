package service

import (
	"time"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// mergeNotifications 把同一收件人、同一类型、按时间升序的到期通知
// 合并为若干时间窗分块，每块最终合成一条短信。
//
// 算法：块的过期时刻 = 块内第一条通知的发送时刻 + interval；
// 发送时刻严格早于过期时刻的通知并入当前块，到达或超过过期时刻的
// 通知开启新块（过期时刻相对它自身重置）。
//
// 保证：输入通知总数与相对顺序在输出中不变，任何通知只出现在一个块里；
// 空输入返回空输出。
func mergeNotifications(notifications []model.Notification, interval time.Duration) [][]model.Notification {
	if len(notifications) == 0 {
		return nil
	}

	var chunks [][]model.Notification
	current := []model.Notification{notifications[0]}
	expiry := notifications[0].SendAt.Add(interval)

	for _, n := range notifications[1:] {
		if n.SendAt.Before(expiry) {
			current = append(current, n)
			continue
		}
		chunks = append(chunks, current)
		current = []model.Notification{n}
		expiry = n.SendAt.Add(interval)
	}
	chunks = append(chunks, current)

	return chunks
}
