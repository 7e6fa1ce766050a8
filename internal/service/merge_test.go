package service

import (
	"testing"
	"time"

	"github.com/minqi/smartdose-sub000/internal/model"
)

func notificationAt(t *testing.T, id, sendAt string) model.Notification {
	t.Helper()
	return model.Notification{
		NotificationID: id,
		SendAt:         mustTime(t, sendAt),
	}
}

func TestMergeNotifications_Empty(t *testing.T) {
	chunks := mergeNotifications(nil, 30*time.Minute)
	if chunks != nil {
		t.Errorf("空输入应返回空输出，实际 %v", chunks)
	}
}

func TestMergeNotifications_AllWithinWindow(t *testing.T) {
	input := []model.Notification{
		notificationAt(t, "a", "2026-03-10T09:00:00Z"),
		notificationAt(t, "b", "2026-03-10T09:10:00Z"),
		notificationAt(t, "c", "2026-03-10T09:29:00Z"),
	}

	chunks := mergeNotifications(input, 30*time.Minute)

	if len(chunks) != 1 {
		t.Fatalf("期望 1 个分块，实际 %d", len(chunks))
	}
	if len(chunks[0]) != 3 {
		t.Errorf("分块应包含全部 3 条，实际 %d", len(chunks[0]))
	}
}

func TestMergeNotifications_ExpiryAnchoredToChunkHead(t *testing.T) {
	// 过期时刻相对块首而非前一条：09:00 + 30m = 09:30，
	// 09:29 并入，09:31 开新块（即使它与 09:29 只差 2 分钟）
	input := []model.Notification{
		notificationAt(t, "a", "2026-03-10T09:00:00Z"),
		notificationAt(t, "b", "2026-03-10T09:29:00Z"),
		notificationAt(t, "c", "2026-03-10T09:31:00Z"),
	}

	chunks := mergeNotifications(input, 30*time.Minute)

	if len(chunks) != 2 {
		t.Fatalf("期望 2 个分块，实际 %d", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 1 {
		t.Errorf("期望分块大小 [2,1]，实际 [%d,%d]", len(chunks[0]), len(chunks[1]))
	}
	if chunks[1][0].NotificationID != "c" {
		t.Errorf("第二块应以 c 开头，实际 %s", chunks[1][0].NotificationID)
	}
}

func TestMergeNotifications_ExactlyAtExpiryStartsNewChunk(t *testing.T) {
	// 严格早于过期时刻才并入：恰好等于过期时刻开新块
	input := []model.Notification{
		notificationAt(t, "a", "2026-03-10T09:00:00Z"),
		notificationAt(t, "b", "2026-03-10T09:30:00Z"),
	}

	chunks := mergeNotifications(input, 30*time.Minute)

	if len(chunks) != 2 {
		t.Fatalf("期望 2 个分块，实际 %d", len(chunks))
	}
}

func TestMergeNotifications_PreservesCountAndOrder(t *testing.T) {
	input := []model.Notification{
		notificationAt(t, "a", "2026-03-10T09:00:00Z"),
		notificationAt(t, "b", "2026-03-10T09:45:00Z"),
		notificationAt(t, "c", "2026-03-10T10:00:00Z"),
		notificationAt(t, "d", "2026-03-10T11:00:00Z"),
		notificationAt(t, "e", "2026-03-10T11:10:00Z"),
	}

	chunks := mergeNotifications(input, 30*time.Minute)

	var flat []string
	for _, chunk := range chunks {
		for _, n := range chunk {
			flat = append(flat, n.NotificationID)
		}
	}
	if len(flat) != len(input) {
		t.Fatalf("分块总数应与输入一致：期望 %d 实际 %d", len(input), len(flat))
	}
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		if flat[i] != id {
			t.Errorf("位置 %d 期望 %s 实际 %s", i, id, flat[i])
		}
	}
}
