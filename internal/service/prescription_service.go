package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ── 处方模块错误 ──
var ErrBadRemindAt = errors.New("提醒时间格式应为 RFC3339")

// PrescriptionService 处方与随方提醒管理
type PrescriptionService interface {
	// Create 开具处方并排程两条提醒：
	// 取药提醒立即生效；服药提醒同时建好，但在取药前被投递管线搁置
	Create(ctx context.Context, req *dto.CreatePrescriptionRequest) (*model.Prescription, error)
	Get(ctx context.Context, id string) (*model.Prescription, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Prescription, error)
}

type prescriptionService struct {
	repo   *repository.Repository
	clock  Clock
	logger *zap.Logger
}

// NewPrescriptionService 创建 PrescriptionService 实例
func NewPrescriptionService(repo *repository.Repository, clock Clock, logger *zap.Logger) PrescriptionService {
	return &prescriptionService{repo: repo, clock: clock, logger: logger}
}

func (s *prescriptionService) Create(ctx context.Context, req *dto.CreatePrescriptionRequest) (*model.Prescription, error) {
	if _, err := s.repo.User.GetByID(ctx, req.PatientID); err != nil {
		return nil, err
	}

	remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
	if err != nil {
		return nil, ErrBadRemindAt
	}
	cadence := req.Cadence
	if cadence == "" {
		cadence = model.CadenceDaily
	}

	p := &model.Prescription{
		PatientID:    req.PatientID,
		PrescriberID: &req.PrescriberID,
		DrugName:     req.DrugName,
		DrugInfo:     req.DrugInfo,
		SafetyNetOn:  req.SafetyNetOn,
	}
	if err := s.repo.Prescription.Create(ctx, p); err != nil {
		return nil, err
	}

	dow := int(remindAt.Weekday())
	for _, notificationType := range []string{model.NotificationRefill, model.NotificationMedication} {
		n := model.Notification{
			RecipientID:    req.PatientID,
			Type:           notificationType,
			Cadence:        cadence,
			SendAt:         remindAt,
			Active:         true,
			PrescriptionID: &p.PrescriptionID,
		}
		if cadence == model.CadenceWeekly {
			n.DayOfWeek = &dow
		}
		if err := s.repo.Notification.Create(ctx, &n); err != nil {
			return nil, err
		}
	}

	s.logger.Info("处方创建完成",
		zap.String("prescription_id", p.PrescriptionID),
		zap.String("patient_id", p.PatientID),
		zap.Time("remind_at", remindAt))
	return p, nil
}

func (s *prescriptionService) Get(ctx context.Context, id string) (*model.Prescription, error) {
	return s.repo.Prescription.GetByID(ctx, id)
}

func (s *prescriptionService) ListByPatient(ctx context.Context, patientID string) ([]model.Prescription, error) {
	return s.repo.Prescription.ListByPatient(ctx, patientID)
}
