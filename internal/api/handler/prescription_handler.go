package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/pkg/response"
)

// PrescriptionHandler 处方模块 HTTP 处理器
type PrescriptionHandler struct {
	prescriptionSvc service.PrescriptionService
}

// NewPrescriptionHandler 创建 PrescriptionHandler
func NewPrescriptionHandler(prescriptionSvc service.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptionSvc: prescriptionSvc}
}

// Create 开具处方
// POST /api/v1/prescriptions
func (h *PrescriptionHandler) Create(c *gin.Context) {
	var req dto.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	p, err := h.prescriptionSvc.Create(c.Request.Context(), &req)
	if err != nil {
		h.handlePrescriptionError(c, err)
		return
	}
	response.Created(c, p)
}

// Get 获取处方详情
// GET /api/v1/prescriptions/:id
func (h *PrescriptionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "处方ID不能为空")
		return
	}

	p, err := h.prescriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handlePrescriptionError(c, err)
		return
	}
	response.OK(c, p)
}

// ListByPatient 获取患者的处方列表
// GET /api/v1/patients/:id/prescriptions
func (h *PrescriptionHandler) ListByPatient(c *gin.Context) {
	patientID := c.Param("id")
	if patientID == "" {
		response.BadRequest(c, 10001, "患者ID不能为空")
		return
	}

	list, err := h.prescriptionSvc.ListByPatient(c.Request.Context(), patientID)
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"list": list})
}

func (h *PrescriptionHandler) handlePrescriptionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, 13001, "处方或患者不存在")
	case errors.Is(err, service.ErrBadRemindAt):
		response.BadRequest(c, 13002, "提醒时间格式应为 RFC3339")
	default:
		response.InternalError(c)
	}
}
