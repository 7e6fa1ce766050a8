package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/model"
)

func setupPatientService(t *testing.T, now time.Time) (PatientService, *mockRepos) {
	t.Helper()
	repo, mocks := newMockRepository()
	svc := NewPatientService(repo, NewFixedClock(now), zap.NewNop())
	return svc, mocks
}

func TestPatientService_Enroll_SchedulesWelcome(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)

	user, err := svc.Enroll(context.Background(), &dto.EnrollPatientRequest{
		Name:  "李华",
		Phone: strPtr("+8613800000001"),
	})
	if err != nil {
		t.Fatalf("Enroll 应成功: %v", err)
	}
	if user.Status != model.StatusNew {
		t.Errorf("新患者应为 NEW，实际 %s", user.Status)
	}
	if user.Role != model.RolePatient {
		t.Errorf("角色应默认 patient，实际 %s", user.Role)
	}

	var welcome *model.Notification
	for _, n := range mocks.notifications.notifications {
		if n.Type == model.NotificationWelcome {
			welcome = n
		}
	}
	if welcome == nil {
		t.Fatal("应排程欢迎通知")
	}
	if !welcome.SendAt.Equal(now) {
		t.Errorf("缺省应立即排程，实际 %v", welcome.SendAt)
	}
	if welcome.Cadence != model.CadenceNone || !welcome.Active {
		t.Error("欢迎通知应为一次性且 active")
	}
}

func TestPatientService_Enroll_FutureWelcomeAt(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)

	_, err := svc.Enroll(context.Background(), &dto.EnrollPatientRequest{
		Name:      "李华",
		Phone:     strPtr("+8613800000001"),
		WelcomeAt: strPtr("2026-03-12T09:00:00Z"),
	})
	if err != nil {
		t.Fatalf("Enroll 应成功: %v", err)
	}
	for _, n := range mocks.notifications.notifications {
		if n.Type == model.NotificationWelcome && !n.SendAt.Equal(mustTime(t, "2026-03-12T09:00:00Z")) {
			t.Errorf("欢迎时刻应按请求，实际 %v", n.SendAt)
		}
	}
}

func TestPatientService_Enroll_PhoneTaken(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)
	seedPatient(mocks, "pat-1", "张三", "+8613800000001", model.StatusActive)

	_, err := svc.Enroll(context.Background(), &dto.EnrollPatientRequest{
		Name:  "李华",
		Phone: strPtr("+8613800000001"),
	})
	if !errors.Is(err, ErrPhoneTaken) {
		t.Errorf("期望 ErrPhoneTaken，实际 %v", err)
	}
}

func TestPatientService_Enroll_UnreachableRejected(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, _ := setupPatientService(t, now)

	// 本人无号码且无主联系人
	_, err := svc.Enroll(context.Background(), &dto.EnrollPatientRequest{Name: "李华"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("期望 ErrUnreachable，实际 %v", err)
	}
}

func TestPatientService_Enroll_ViaPrimaryContact(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)
	seedPatient(mocks, "guard-1", "李母", "+8613800000099", model.StatusActive)

	user, err := svc.Enroll(context.Background(), &dto.EnrollPatientRequest{
		Name:             "小李",
		PrimaryContactID: strPtr("guard-1"),
	})
	if err != nil {
		t.Fatalf("通过主联系人可达时应成功: %v", err)
	}
	if user.Phone != nil {
		t.Error("本人号码应保持为空")
	}
}

func TestPatientService_AddSafetyNetContact(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)
	seedPatient(mocks, "care-1", "李母", "+8613800000099", model.StatusActive)

	c, err := svc.AddSafetyNetContact(context.Background(), "pat-1", &dto.AddSafetyNetContactRequest{
		ContactID:    "care-1",
		Relationship: "母亲",
	})
	if err != nil {
		t.Fatalf("应成功: %v", err)
	}
	if c.Relationship != "母亲" {
		t.Errorf("称谓错误: %s", c.Relationship)
	}
}

func TestPatientService_AddSafetyNetContact_NoPhone(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, mocks := setupPatientService(t, now)
	seedPatient(mocks, "pat-1", "李华", "+8613800000001", model.StatusActive)
	mocks.users.users["care-1"] = &model.User{UserID: "care-1", Name: "李母", Role: model.RoleCaregiver, Status: model.StatusActive}

	_, err := svc.AddSafetyNetContact(context.Background(), "pat-1", &dto.AddSafetyNetContactRequest{
		ContactID:    "care-1",
		Relationship: "母亲",
	})
	if !errors.Is(err, ErrContactNoPhone) {
		t.Errorf("期望 ErrContactNoPhone，实际 %v", err)
	}
}

func TestPatientService_AddSafetyNetContact_PatientMissing(t *testing.T) {
	now := mustTime(t, "2026-03-10T10:00:00Z")
	svc, _ := setupPatientService(t, now)

	_, err := svc.AddSafetyNetContact(context.Background(), "nope", &dto.AddSafetyNetContactRequest{
		ContactID:    "care-1",
		Relationship: "母亲",
	})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("期望 ErrRecordNotFound，实际 %v", err)
	}
}
