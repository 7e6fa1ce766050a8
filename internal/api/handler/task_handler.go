package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/service"
	"github.com/minqi/smartdose-sub000/pkg/response"
)

// 安全网排程默认值
const (
	defaultSafetyNetThreshold = 0.8
	defaultSafetyNetTimeout   = 4 * time.Hour
)

// TaskHandler 周期任务的手动触发入口
// 常规触发走 worker 的 cron；这里供运维补跑与联调
type TaskHandler struct {
	notificationSvc service.NotificationCenter
	safetyNetSvc    service.SafetyNetService
	clock           service.Clock
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(notificationSvc service.NotificationCenter, safetyNetSvc service.SafetyNetService, clock service.Clock) *TaskHandler {
	return &TaskHandler{notificationSvc: notificationSvc, safetyNetSvc: safetyNetSvc, clock: clock}
}

// DeliverDue 触发一次投递周期
// POST /api/v1/tasks/deliver
func (h *TaskHandler) DeliverDue(c *gin.Context) {
	report, err := h.notificationSvc.DeliverDue(c.Request.Context(), h.clock.Now())
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, report)
}

// RunSafetyNet 触发一次安全网排程
// POST /api/v1/tasks/safety-net
func (h *TaskHandler) RunSafetyNet(c *gin.Context) {
	var req dto.SafetyNetRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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
	if !finish.After(start) {
		response.BadRequest(c, 10001, "finish 必须晚于 start")
		return
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = defaultSafetyNetThreshold
	}
	timeout := defaultSafetyNetTimeout
	if req.TimeoutHours > 0 {
		timeout = time.Duration(req.TimeoutHours) * time.Hour
	}

	report, err := h.safetyNetSvc.Schedule(c.Request.Context(), start, finish, threshold, timeout)
	if err != nil {
		if errors.Is(err, service.ErrBadThreshold) {
			response.BadRequest(c, 12001, "threshold 必须在 0 到 1 之间")
			return
		}
		response.InternalError(c)
		return
	}
	response.OK(c, report)
}
