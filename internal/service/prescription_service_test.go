package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/model"
)

func setupPrescriptionService(t *testing.T, now time.Time) (PrescriptionService, *mockRepos) {
	t.Helper()
	repo, mocks := newMockRepository()
	svc := NewPrescriptionService(repo, NewFixedClock(now), zap.NewNop())
	return svc, mocks
}

func TestPrescriptionService_Create_SchedulesBothReminders(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPrescriptionService(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)

	p, err := svc.Create(context.Background(), &dto.CreatePrescriptionRequest{
		PatientID:    "pat-1",
		PrescriberID: "doc-1",
		DrugName:     "二甲双胍",
		SafetyNetOn:  true,
		RemindAt:     "2026-03-11T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if p.Filled {
		t.Error("新处方 filled 应为 false")
	}

	var refill, medication *model.Notification
	for _, n := range mocks.notifications.notifications {
		switch n.Type {
		case model.NotificationRefill:
			refill = n
		case model.NotificationMedication:
			medication = n
		}
	}
	if refill == nil || medication == nil {
		t.Fatal("应同时排程取药与服药提醒")
	}
	for _, n := range []*model.Notification{refill, medication} {
		if n.Cadence != model.CadenceDaily {
			t.Errorf("缺省节奏应为 DAILY，实际 %s", n.Cadence)
		}
		if !n.SendAt.Equal(mustTime(t, "2026-03-11T09:00:00Z")) {
			t.Errorf("锚定时刻错误: %v", n.SendAt)
		}
		if n.PrescriptionID == nil || *n.PrescriptionID != p.PrescriptionID {
			t.Error("提醒应关联处方")
		}
	}
}

func TestPrescriptionService_Create_WeeklySetsDayOfWeek(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPrescriptionService(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)

	_, err := svc.Create(context.Background(), &dto.CreatePrescriptionRequest{
		PatientID:    "pat-1",
		PrescriberID: "doc-1",
		DrugName:     "阿司匹林",
		RemindAt:     "2026-03-11T09:00:00Z", // 周三
		Cadence:      model.CadenceWeekly,
	})
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	for _, n := range mocks.notifications.notifications {
		if n.DayOfWeek == nil || *n.DayOfWeek != int(time.Wednesday) {
			t.Errorf("周节奏应锚定星期三，实际 %v", n.DayOfWeek)
		}
	}
}

func TestPrescriptionService_Create_BadRemindAt(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPrescriptionService(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)

	_, err := svc.Create(context.Background(), &dto.CreatePrescriptionRequest{
		PatientID:    "pat-1",
		PrescriberID: "doc-1",
		DrugName:     "二甲双胍",
		RemindAt:     "明天早上",
	})
	if !errors.Is(err, ErrBadRemindAt) {
		t.Errorf("期望 ErrBadRemindAt，实际 %v", err)
	}
}
