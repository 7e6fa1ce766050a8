package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// FeedbackRepository 反馈数据访问接口
type FeedbackRepository interface {
	Create(ctx context.Context, f *model.Feedback) error
	Update(ctx context.Context, f *model.Feedback) error
	// ListMedicationInWindow 返回窗口内发出的、处方开启安全网的服药反馈
	// （依从性计算的数据源；带 Prescription 关联）
	ListMedicationInWindow(ctx context.Context, start, finish time.Time) ([]model.Feedback, error)
	// ListByPatientInWindow 依从性报表导出用：某时段全部服药反馈
	ListByPatientInWindow(ctx context.Context, start, finish time.Time) ([]model.Feedback, error)
}

type feedbackRepo struct {
	db *gorm.DB
}

// NewFeedbackRepo 创建 FeedbackRepository 实例
func NewFeedbackRepo(db *gorm.DB) FeedbackRepository {
	return &feedbackRepo{db: db}
}

func (r *feedbackRepo) Create(ctx context.Context, f *model.Feedback) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *feedbackRepo) Update(ctx context.Context, f *model.Feedback) error {
	return r.db.WithContext(ctx).Save(f).Error
}

func (r *feedbackRepo) ListMedicationInWindow(ctx context.Context, start, finish time.Time) ([]model.Feedback, error) {
	var list []model.Feedback
	err := r.db.WithContext(ctx).
		Joins("JOIN prescriptions ON prescriptions.prescription_id = feedbacks.prescription_id").
		Where("feedbacks.type = ?", model.NotificationMedication).
		Where("feedbacks.sent_at BETWEEN ? AND ?", start, finish).
		Where("prescriptions.safety_net_on = ?", true).
		Preload("Prescription").
		Find(&list).Error
	return list, err
}

func (r *feedbackRepo) ListByPatientInWindow(ctx context.Context, start, finish time.Time) ([]model.Feedback, error) {
	var list []model.Feedback
	err := r.db.WithContext(ctx).
		Where("type = ? AND sent_at BETWEEN ? AND ?", model.NotificationMedication, start, finish).
		Preload("Prescription").
		Preload("Prescription.Patient").
		Find(&list).Error
	return list, err
}
