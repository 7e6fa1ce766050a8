package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/minqi/smartdose-sub000/pkg/errors"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// NotificationRepository 通知数据访问接口
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	// ListDue 返回 [from, to] 内到期的活跃通知，按发送时间升序。
	// 事务内调用时行级锁定（SKIP LOCKED），并发投递周期互不重复取件。
	ListDue(ctx context.Context, from, to time.Time) ([]model.Notification, error)
	// Save 带乐观锁写回：版本不匹配返回 pkg/errors.ErrOptimisticLock
	Save(ctx context.Context, n *model.Notification) error
	ListActiveByPrescription(ctx context.Context, prescriptionID string, notificationType string) ([]model.Notification, error)
	ListActiveByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepo) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).
		Preload("Recipient").
		Preload("Prescription").
		Preload("PreviousMessage").
		Where("notification_id = ?", id).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) ListDue(ctx context.Context, from, to time.Time) ([]model.Notification, error) {
	var list []model.Notification
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("active = ? AND send_at BETWEEN ? AND ?", true, from, to).
		Order("send_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}

	// 关联数据单独加载：FOR UPDATE 与 Preload 的 JOIN 在 PostgreSQL 上不能同时作用于外表
	for i := range list {
		var u model.User
		if err := r.db.WithContext(ctx).
			Preload("PrimaryContact").
			Where("user_id = ?", list[i].RecipientID).
			First(&u).Error; err != nil {
			return nil, err
		}
		list[i].Recipient = &u
		if list[i].PrescriptionID != nil {
			var p model.Prescription
			if err := r.db.WithContext(ctx).
				Where("prescription_id = ?", *list[i].PrescriptionID).
				First(&p).Error; err != nil {
				return nil, err
			}
			list[i].Prescription = &p
		}
		if list[i].PreviousMessageID != nil {
			var m model.Message
			if err := r.db.WithContext(ctx).
				Where("message_id = ?", *list[i].PreviousMessageID).
				First(&m).Error; err != nil {
				return nil, err
			}
			list[i].PreviousMessage = &m
		}
	}
	return list, nil
}

func (r *notificationRepo) Save(ctx context.Context, n *model.Notification) error {
	current := n.Version
	n.Version = current + 1
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("notification_id = ? AND version = ?", n.NotificationID, current).
		Updates(map[string]interface{}{
			"send_at":    n.SendAt,
			"active":     n.Active,
			"times_sent": n.TimesSent,
			"version":    n.Version,
		})
	if res.Error != nil {
		n.Version = current
		return res.Error
	}
	if res.RowsAffected == 0 {
		n.Version = current
		return apperrors.ErrOptimisticLock
	}
	return nil
}

func (r *notificationRepo) ListActiveByPrescription(ctx context.Context, prescriptionID string, notificationType string) ([]model.Notification, error) {
	var list []model.Notification
	db := r.db.WithContext(ctx).
		Where("prescription_id = ? AND active = ?", prescriptionID, true)
	if notificationType != "" {
		db = db.Where("type = ?", notificationType)
	}
	err := db.Order("send_at ASC").Find(&list).Error
	return list, err
}

func (r *notificationRepo) ListActiveByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error) {
	var list []model.Notification
	err := r.db.WithContext(ctx).
		Preload("Prescription").
		Where("recipient_id = ? AND active = ?", recipientID, true).
		Order("send_at ASC").
		Find(&list).Error
	return list, err
}
