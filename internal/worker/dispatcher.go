package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/service"
)

// deliverTimeout 单次投递周期的超时上限
// 低于轮询间隔，保证上一轮卡死不会叠加到下一轮
const deliverTimeout = 4 * time.Minute

// Dispatcher 投递调度器：按固定间隔触发一次投递周期
// 多实例部署时依赖 ListDue 的行级锁互斥，不需要额外选主
type Dispatcher struct {
	cron            *cron.Cron
	notificationSvc service.NotificationCenter
	clock           service.Clock
	interval        time.Duration
	logger          *zap.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(
	notificationSvc service.NotificationCenter,
	clock service.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		cron:            cron.New(),
		notificationSvc: notificationSvc,
		clock:           clock,
		interval:        interval,
		logger:          logger,
	}
}

// Start 启动调度循环
func (d *Dispatcher) Start() error {
	spec := fmt.Sprintf("@every %s", d.interval)
	if _, err := d.cron.AddFunc(spec, d.runOnce); err != nil {
		return fmt.Errorf("注册投递任务失败: %w", err)
	}
	d.cron.Start()
	d.logger.Info("投递调度器已启动", zap.Duration("interval", d.interval))
	return nil
}

// Stop 停止调度并等待执行中的周期结束
func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.logger.Info("投递调度器已停止")
}

func (d *Dispatcher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if _, err := d.notificationSvc.DeliverDue(ctx, d.clock.Now()); err != nil {
		// 失败的通知仍是到期状态，下一轮自动重试
		d.logger.Error("投递周期执行失败", zap.Error(err))
	}
}
