package handler

import (
	"encoding/xml"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/pkg/redis"
)

// inboundDedupTTL 网关重试去重窗口：同一 MessageSid 只处理一次
const inboundDedupTTL = 10 * time.Minute

// WebhookHandler 短信网关入站回调处理器
// 应答通过 TwiML 同步返回，网关代发，不再走出站 API
type WebhookHandler struct {
	responseSvc service.ResponseCenter
	rdb         *redis.Client
	logger      *zap.Logger
}

// NewWebhookHandler 创建 WebhookHandler
func NewWebhookHandler(responseSvc service.ResponseCenter, rdb *redis.Client, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{responseSvc: responseSvc, rdb: rdb, logger: logger}
}

// twimlResponse TwiML 应答体
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// ReceiveSMS 接收入站短信
// POST /api/v1/sms/webhook（application/x-www-form-urlencoded）
func (h *WebhookHandler) ReceiveSMS(c *gin.Context) {
	var form dto.InboundSMSForm
	if err := c.ShouldBind(&form); err != nil {
		c.XML(http.StatusBadRequest, twimlResponse{})
		return
	}

	// 网关重试去重：重复回调返回空应答，不再进状态机
	if h.rdb != nil && form.MessageSid != "" {
		first, err := h.rdb.MarkInboundOnce(c.Request.Context(), form.MessageSid, inboundDedupTTL)
		if err == nil && !first {
			h.logger.Info("忽略重复的入站回调", zap.String("message_sid", form.MessageSid))
			c.XML(http.StatusOK, twimlResponse{})
			return
		}
	}

	reply, err := h.responseSvc.ProcessResponse(c.Request.Context(), form.From, form.Body)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSender) {
			// 非在册号码静默处理；返回 200 防止网关重试
			c.XML(http.StatusOK, twimlResponse{})
			return
		}
		h.logger.Error("入站短信处理失败", zap.Error(err))
		c.XML(http.StatusInternalServerError, twimlResponse{})
		return
	}

	c.XML(http.StatusOK, twimlResponse{Message: reply})
}
