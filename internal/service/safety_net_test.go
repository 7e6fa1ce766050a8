package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/render"
)

func setupSafetyNet(t *testing.T, now time.Time) (SafetyNetService, *mockRepos) {
	t.Helper()
	repo, mocks := newMockRepository()
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("加载模板失败: %v", err)
	}
	svc := NewSafetyNetService(repo, renderer, NewFixedClock(now), zap.NewNop())
	return svc, mocks
}

// seedAdherenceData 窗口内 4 条反馈，completed 3 条 → 依从率 75%
func seedAdherenceData(mocks *mockRepos, now time.Time) {
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)
	seedPatient(mocks, "care-1", "李母", "+8613800000099", model.StatusActive)
	seedPrescription(mocks, "rx-1", "pat-1", "二甲双胍", true)
	mocks.contacts.contacts["snc-1"] = &model.SafetyNetContact{
		SafetyNetContactID: "snc-1",
		PatientID:          "pat-1",
		ContactID:          "care-1",
		Relationship:       "母亲",
	}

	for i, completed := range []bool{true, true, true, false} {
		f := &model.Feedback{
			FeedbackID:     string(rune('a'+i)) + "-fb",
			Type:           model.NotificationMedication,
			NotificationID: "ntf-m1",
			PrescriptionID: "rx-1",
			Completed:      completed,
			SentAt:         now.Add(-time.Duration(i+1) * 24 * time.Hour),
		}
		mocks.feedbacks.feedbacks[f.FeedbackID] = f
	}
}

func TestSafetyNet_BadThreshold(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, _ := setupSafetyNet(t, now)

	for _, threshold := range []float64{-0.1, 1.5} {
		_, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, threshold, 4*time.Hour)
		if !errors.Is(err, ErrBadThreshold) {
			t.Errorf("threshold=%v 期望 ErrBadThreshold，实际 %v", threshold, err)
		}
	}
}

func TestSafetyNet_SchedulesPerContact(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupSafetyNet(t, now)
	seedAdherenceData(mocks, now)

	report, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, 0.8, 4*time.Hour)
	if err != nil {
		t.Fatalf("Schedule 应成功: %v", err)
	}
	if report.PatientsEvaluated != 1 || report.Scheduled != 1 {
		t.Errorf("期望 evaluated=1 scheduled=1，实际 %+v", report)
	}

	var n *model.Notification
	for _, stored := range mocks.notifications.notifications {
		if stored.Type == model.NotificationSafetyNet {
			n = stored
		}
	}
	if n == nil {
		t.Fatal("应创建安全网通知")
	}
	if n.RecipientID != "care-1" {
		t.Errorf("收件人应为联系人，实际 %s", n.RecipientID)
	}
	if n.PatientOfSafetyNetID == nil || *n.PatientOfSafetyNetID != "pat-1" {
		t.Error("应记录所属患者")
	}
	if n.AdherenceRate == nil || *n.AdherenceRate != 0.75 {
		t.Errorf("依从率应为 0.75，实际 %v", n.AdherenceRate)
	}
	if !n.SendAt.Equal(now) {
		t.Errorf("安全网通知应立即到期，实际 %v", n.SendAt)
	}

	// 正文在排程时定稿：75% 低于 80% 阈值，走关心分支
	if n.Content == nil {
		t.Fatal("正文应预渲染")
	}
	body := *n.Content
	if !strings.Contains(body, "75%") || !strings.Contains(body, "80%") {
		t.Errorf("正文应包含依从率与阈值: %s", body)
	}
	if !strings.Contains(body, "母亲") || !strings.Contains(body, "李华") {
		t.Errorf("正文应包含称谓与患者名: %s", body)
	}
	if !strings.Contains(body, "关心") {
		t.Errorf("低于阈值应走提醒关心分支: %s", body)
	}
}

func TestSafetyNet_AdherentBranch(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupSafetyNet(t, now)
	seedAdherenceData(mocks, now)

	// 阈值低于实际依从率 → 鼓励分支
	_, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, 0.5, 4*time.Hour)
	if err != nil {
		t.Fatalf("Schedule 应成功: %v", err)
	}

	for _, n := range mocks.notifications.notifications {
		if n.Type != model.NotificationSafetyNet {
			continue
		}
		if !strings.Contains(*n.Content, "鼓励") {
			t.Errorf("高于阈值应走鼓励分支: %s", *n.Content)
		}
		// 患者性别 female → 代词“她”
		if !strings.Contains(*n.Content, "她") {
			t.Errorf("代词应按患者性别选择: %s", *n.Content)
		}
	}
}

func TestSafetyNet_RecentFeedbackExcludedByTimeout(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupSafetyNet(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)
	seedPatient(mocks, "care-1", "李母", "+8613800000099", model.StatusActive)
	seedPrescription(mocks, "rx-1", "pat-1", "二甲双胍", true)
	mocks.contacts.contacts["snc-1"] = &model.SafetyNetContact{
		SafetyNetContactID: "snc-1",
		PatientID:          "pat-1",
		ContactID:          "care-1",
		Relationship:       "母亲",
	}

	// 全部反馈都在 timeout 内 → 还在等回复，不计入
	f := &model.Feedback{
		FeedbackID:     "fb-recent",
		Type:           model.NotificationMedication,
		NotificationID: "ntf-m1",
		PrescriptionID: "rx-1",
		SentAt:         now.Add(-time.Hour),
	}
	mocks.feedbacks.feedbacks[f.FeedbackID] = f

	report, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, 0.8, 4*time.Hour)
	if err != nil {
		t.Fatalf("Schedule 应成功: %v", err)
	}
	if report.PatientsEvaluated != 0 || report.Scheduled != 0 {
		t.Errorf("不足 timeout 的反馈不应参与统计，实际 %+v", report)
	}
}

func TestSafetyNet_NoContacts_NothingScheduled(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupSafetyNet(t, now)
	seedAdherenceData(mocks, now)
	delete(mocks.contacts.contacts, "snc-1")

	report, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, 0.8, 4*time.Hour)
	if err != nil {
		t.Fatalf("Schedule 应成功: %v", err)
	}
	if report.PatientsEvaluated != 1 {
		t.Errorf("患者仍应被评估，实际 %d", report.PatientsEvaluated)
	}
	if report.Scheduled != 0 {
		t.Errorf("无联系人不应创建通知，实际 %d", report.Scheduled)
	}
}

func TestSafetyNet_OffPrescriptionExcluded(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupSafetyNet(t, now)
	seedAdherenceData(mocks, now)
	// 处方关闭安全网共享
	mocks.prescriptions.prescriptions["rx-1"].SafetyNetOn = false

	report, err := svc.Schedule(context.Background(), now.Add(-7*24*time.Hour), now, 0.8, 4*time.Hour)
	if err != nil {
		t.Fatalf("Schedule 应成功: %v", err)
	}
	if report.PatientsEvaluated != 0 || report.Scheduled != 0 {
		t.Errorf("safety_net_on=false 的处方不应参与，实际 %+v", report)
	}
}
