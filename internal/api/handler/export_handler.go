package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/pkg/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportAdherence 导出依从性报表
// GET /api/v1/export/adherence?start=...&finish=...
func (h *ExportHandler) ExportAdherence(c *gin.Context) {
	var req dto.ExportAdherenceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		response.BadRequest(c, 10001, "start 必须是 RFC3339 时间")
		return
	}
	finish, err := time.Parse(time.RFC3339, req.Finish)
	if err != nil {
		response.BadRequest(c, 10001, "finish 必须是 RFC3339 时间")
		return
	}

	buf, filename, err := h.exportSvc.ExportAdherence(c.Request.Context(), start, finish)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	writeDownload(c, xlsxContentType, filename, buf.Bytes())
}

// ExportCalendar 导出患者提醒日程 ICS
// GET /api/v1/export/calendar/:patient_id
func (h *ExportHandler) ExportCalendar(c *gin.Context) {
	patientID := c.Param("patient_id")
	if patientID == "" {
		response.BadRequest(c, 10001, "患者ID不能为空")
		return
	}

	buf, filename, err := h.exportSvc.ExportReminderCalendar(c.Request.Context(), patientID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	writeDownload(c, icsContentType, filename, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoFeedback):
		response.NotFound(c, 16101, "该时段没有可统计的服药反馈")
	case errors.Is(err, service.ErrExportNoReminder):
		response.NotFound(c, 16102, "该患者没有活跃的提醒")
	default:
		response.InternalError(c)
	}
}

func writeDownload(c *gin.Context, contentType, filename string, data []byte) {
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, contentType, data)
}
