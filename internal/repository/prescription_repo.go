package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// PrescriptionRepository 处方数据访问接口
type PrescriptionRepository interface {
	Create(ctx context.Context, p *model.Prescription) error
	GetByID(ctx context.Context, id string) (*model.Prescription, error)
	Update(ctx context.Context, p *model.Prescription) error
	ListByPatient(ctx context.Context, patientID string) ([]model.Prescription, error)
}

type prescriptionRepo struct {
	db *gorm.DB
}

// NewPrescriptionRepo 创建 PrescriptionRepository 实例
func NewPrescriptionRepo(db *gorm.DB) PrescriptionRepository {
	return &prescriptionRepo{db: db}
}

func (r *prescriptionRepo) Create(ctx context.Context, p *model.Prescription) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *prescriptionRepo) GetByID(ctx context.Context, id string) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Where("prescription_id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepo) Update(ctx context.Context, p *model.Prescription) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *prescriptionRepo) ListByPatient(ctx context.Context, patientID string) ([]model.Prescription, error) {
	var list []model.Prescription
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// SafetyNetContactRepository 安全网联系人数据访问接口
type SafetyNetContactRepository interface {
	Create(ctx context.Context, c *model.SafetyNetContact) error
	ListByPatient(ctx context.Context, patientID string) ([]model.SafetyNetContact, error)
	Delete(ctx context.Context, id string, deletedBy string) error
}

type safetyNetContactRepo struct {
	db *gorm.DB
}

// NewSafetyNetContactRepo 创建 SafetyNetContactRepository 实例
func NewSafetyNetContactRepo(db *gorm.DB) SafetyNetContactRepository {
	return &safetyNetContactRepo{db: db}
}

func (r *safetyNetContactRepo) Create(ctx context.Context, c *model.SafetyNetContact) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *safetyNetContactRepo) ListByPatient(ctx context.Context, patientID string) ([]model.SafetyNetContact, error) {
	var list []model.SafetyNetContact
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Preload("Patient").
		Where("patient_id = ?", patientID).
		Find(&list).Error
	return list, err
}

func (r *safetyNetContactRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.SafetyNetContact{}).
		Where("safety_net_contact_id = ?", id).
		Updates(map[string]interface{}{"deleted_at": gorm.Expr("CURRENT_TIMESTAMP"), "deleted_by": deletedBy}).Error
}
