package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/model"
)

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// Create 创建消息并写入与通知/反馈的关联关系
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// MostRecentUnanswered 返回该收件人最近一条尚未回复的消息；
	// 不存在时返回 gorm.ErrRecordNotFound
	MostRecentUnanswered(ctx context.Context, recipientID string) (*model.Message, error)
	Update(ctx context.Context, m *model.Message) error
	// CountByTypeSince 统计某收件人自 since 起某类型消息数（当日序号用）
	CountByTypeSince(ctx context.Context, recipientID, messageType string, since time.Time) (int64, error)
}

type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepo 创建 MessageRepository 实例
func NewMessageRepo(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, m *model.Message) error {
	// FullSaveAssociations 会把已存在的通知再 Save 一遍，
	// 这里只需要 join 表记录，靠 many2many 默认行为即可
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := r.db.WithContext(ctx).
		Preload("Notifications").
		Preload("Feedbacks").
		Preload("PreviousMessage").
		Where("message_id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) MostRecentUnanswered(ctx context.Context, recipientID string) (*model.Message, error) {
	var m model.Message
	err := r.db.WithContext(ctx).
		Preload("Notifications").
		Preload("Feedbacks").
		Preload("PreviousMessage").
		Where("recipient_id = ? AND responded_at IS NULL", recipientID).
		Order("sent_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) Update(ctx context.Context, m *model.Message) error {
	// Save 会级联 m2m 关联；消息的关联集在创建后不再变化，仅更新本体列
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("message_id = ?", m.MessageID).
		Updates(map[string]interface{}{
			"responded_at": m.RespondedAt,
			"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

func (r *messageRepo) CountByTypeSince(ctx context.Context, recipientID, messageType string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("recipient_id = ? AND type = ? AND sent_at >= ?", recipientID, messageType, since).
		Count(&n).Error
	return n, err
}
