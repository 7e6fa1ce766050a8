package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/render"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// 安全网服务 — 依从性摘要
// ═══════════════════════════════════════════════════════════
//
// 周期扫描窗口内的服药反馈，按患者汇总依从率，给每位安全网联系人
// 排一条 SAFETY_NET 通知。正文在此刻渲染定稿（投递时窗口数据可能
// 已变化），投递管线只负责照发。

// ErrBadThreshold 阈值不在 [0, 1] 区间
var ErrBadThreshold = errors.New("依从率阈值必须在 0 到 1 之间")

// SafetyNetReport 一次安全网排程的结果
type SafetyNetReport struct {
	PatientsEvaluated int `json:"patients_evaluated"` // 窗口内有可评估反馈的患者数
	Scheduled         int `json:"scheduled"`          // 创建的通知条数
}

// SafetyNetService 安全网排程接口
type SafetyNetService interface {
	// Schedule 评估 [start, finish] 窗口内的依从性并为联系人排程通知。
	// timeout 内发出的反馈视为仍在等待回复，不计入分母。
	Schedule(ctx context.Context, start, finish time.Time, threshold float64, timeout time.Duration) (*SafetyNetReport, error)
}

type safetyNetService struct {
	repo     *repository.Repository
	renderer render.Renderer
	clock    Clock
	logger   *zap.Logger
}

// NewSafetyNetService 创建 SafetyNetService 实例
func NewSafetyNetService(
	repo *repository.Repository,
	renderer render.Renderer,
	clock Clock,
	logger *zap.Logger,
) SafetyNetService {
	return &safetyNetService{
		repo:     repo,
		renderer: renderer,
		clock:    clock,
		logger:   logger,
	}
}

// adherenceTally 单个患者窗口内的记账
type adherenceTally struct {
	total     int
	completed int
}

func (t adherenceTally) rate() float64 {
	return float64(t.completed) / float64(t.total)
}

func (s *safetyNetService) Schedule(
	ctx context.Context,
	start, finish time.Time,
	threshold float64,
	timeout time.Duration,
) (*SafetyNetReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, ErrBadThreshold
	}
	now := s.clock.Now()

	feedbacks, err := s.repo.Feedback.ListMedicationInWindow(ctx, start, finish)
	if err != nil {
		return nil, err
	}

	// 按患者汇总；太新的反馈还在等回复，不计入
	tallies := make(map[string]adherenceTally)
	for _, f := range feedbacks {
		if f.Prescription == nil {
			continue
		}
		if now.Sub(f.SentAt) < timeout {
			continue
		}
		t := tallies[f.Prescription.PatientID]
		t.total++
		if f.Completed {
			t.completed++
		}
		tallies[f.Prescription.PatientID] = t
	}

	report := &SafetyNetReport{}
	for patientID, tally := range tallies {
		if tally.total == 0 {
			continue
		}
		report.PatientsEvaluated++

		if err := s.schedulePatient(ctx, patientID, tally, threshold, now, report); err != nil {
			// 单个患者失败不阻断其余患者
			s.logger.Error("安全网排程失败",
				zap.String("patient_id", patientID), zap.Error(err))
		}
	}

	s.logger.Info("安全网排程完成",
		zap.Int("patients", report.PatientsEvaluated),
		zap.Int("scheduled", report.Scheduled))
	return report, nil
}

func (s *safetyNetService) schedulePatient(
	ctx context.Context,
	patientID string,
	tally adherenceTally,
	threshold float64,
	now time.Time,
	report *SafetyNetReport,
) error {
	patient, err := s.repo.User.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	contacts, err := s.repo.SafetyNetContact.ListByPatient(ctx, patientID)
	if err != nil {
		return err
	}

	rate := tally.rate()
	for _, c := range contacts {
		body, err := s.renderer.Render("safety_net", map[string]interface{}{
			"Relationship": c.Relationship,
			"FirstName":    firstName(patient.Name),
			"Rate":         rate,
			"Threshold":    threshold,
			"Adherent":     rate >= threshold,
			"Pronoun":      pronounFor(patient.Gender),
		})
		if err != nil {
			return err
		}

		adherence := rate
		n := model.Notification{
			RecipientID:          c.ContactID,
			Type:                 model.NotificationSafetyNet,
			Cadence:              model.CadenceNone,
			SendAt:               now,
			Active:               true,
			Content:              &body,
			AdherenceRate:        &adherence,
			PatientOfSafetyNetID: &patient.UserID,
		}
		if err := s.repo.Notification.Create(ctx, &n); err != nil {
			return err
		}
		report.Scheduled++
	}
	return nil
}

// firstName 中文姓名取名部分不可靠，保留整名；西文名取首段
func firstName(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func pronounFor(gender string) string {
	switch gender {
	case model.GenderMale:
		return "他"
	case model.GenderFemale:
		return "她"
	default:
		return "TA"
	}
}
