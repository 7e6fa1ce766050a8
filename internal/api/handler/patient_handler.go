package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/pkg/response"
)

// PatientHandler 患者模块 HTTP 处理器
type PatientHandler struct {
	patientSvc service.PatientService
}

// NewPatientHandler 创建 PatientHandler
func NewPatientHandler(patientSvc service.PatientService) *PatientHandler {
	return &PatientHandler{patientSvc: patientSvc}
}

// Enroll 登记患者
// POST /api/v1/patients
func (h *PatientHandler) Enroll(c *gin.Context) {
	var req dto.EnrollPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	user, err := h.patientSvc.Enroll(c.Request.Context(), &req)
	if err != nil {
		h.handlePatientError(c, err)
		return
	}
	response.Created(c, user)
}

// Get 获取患者详情
// GET /api/v1/patients/:id
func (h *PatientHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "患者ID不能为空")
		return
	}

	user, err := h.patientSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handlePatientError(c, err)
		return
	}
	response.OK(c, user)
}

// List 患者列表
// GET /api/v1/patients
func (h *PatientHandler) List(c *gin.Context) {
	var req dto.PatientListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.patientSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	response.OKPage(c, list, total, page, pageSize)
}

// AddSafetyNetContact 添加安全网联系人
// POST /api/v1/patients/:id/safety-net-contacts
func (h *PatientHandler) AddSafetyNetContact(c *gin.Context) {
	patientID := c.Param("id")
	if patientID == "" {
		response.BadRequest(c, 10001, "患者ID不能为空")
		return
	}

	var req dto.AddSafetyNetContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	contact, err := h.patientSvc.AddSafetyNetContact(c.Request.Context(), patientID, &req)
	if err != nil {
		h.handlePatientError(c, err)
		return
	}
	response.Created(c, contact)
}

// RemoveSafetyNetContact 移除安全网联系人
// DELETE /api/v1/patients/:id/safety-net-contacts/:contact_id
func (h *PatientHandler) RemoveSafetyNetContact(c *gin.Context) {
	contactID := c.Param("contact_id")
	if contactID == "" {
		response.BadRequest(c, 10001, "联系人ID不能为空")
		return
	}

	// 操作者身份由部署环境的网关注入；此处记录来源 IP 即可
	if err := h.patientSvc.RemoveSafetyNetContact(c.Request.Context(), contactID, c.ClientIP()); err != nil {
		h.handlePatientError(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *PatientHandler) handlePatientError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, 11001, "用户不存在")
	case errors.Is(err, service.ErrPhoneTaken):
		response.BadRequest(c, 11002, "该手机号已被其他用户使用")
	case errors.Is(err, service.ErrUnreachable):
		response.BadRequest(c, 11003, "患者本人与主联系人都没有手机号")
	case errors.Is(err, service.ErrBadWelcomeAt):
		response.BadRequest(c, 11004, "欢迎短信时间格式应为 RFC3339")
	case errors.Is(err, service.ErrContactNoPhone):
		response.BadRequest(c, 11005, "安全网联系人没有手机号")
	default:
		response.InternalError(c)
	}
}
