package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/config"
	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/render"
	"github.com/minqi/smartdose-sub000/internal/repository"
	"github.com/minqi/smartdose-sub000/internal/sms"
)

// DeliveryReport 一次投递周期的结果统计
type DeliveryReport struct {
	Sent    int `json:"sent"`    // 实际发出的短信条数
	Failed  int `json:"failed"`  // 送达失败（无可达号码 / 网关错误）
	Skipped int `json:"skipped"` // 本周期不符合投递条件、留待下次的通知数
}

// NotificationCenter 按类型投递到期通知的管线：
// 过滤资格 → 合并分块 → 渲染 → 发送 → 送达后记账
type NotificationCenter interface {
	// DeliverDue 投递 now 前后窗口内到期的全部通知（周期触发入口）
	DeliverDue(ctx context.Context, now time.Time) (*DeliveryReport, error)
}

type notificationCenter struct {
	repo     *repository.Repository
	gateway  sms.Gateway
	renderer render.Renderer
	cfg      *config.ReminderConfig
	logger   *zap.Logger
}

// NewNotificationCenter 创建 NotificationCenter 实例
func NewNotificationCenter(
	repo *repository.Repository,
	gateway sms.Gateway,
	renderer render.Renderer,
	cfg *config.ReminderConfig,
	logger *zap.Logger,
) NotificationCenter {
	return &notificationCenter{
		repo:     repo,
		gateway:  gateway,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// ═══════════════════════════════════════════════════════════
// DeliverDue — 投递周期入口
// ═══════════════════════════════════════════════════════════
//
// 整个周期在一个事务内执行：ListDue 行级锁定（SKIP LOCKED）使
// 并发周期互不重复取件；单个收件人的失败只记录、不中断其余收件人。

func (s *notificationCenter) DeliverDue(ctx context.Context, now time.Time) (*DeliveryReport, error) {
	report := &DeliveryReport{}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启投递事务失败", zap.Error(err))
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()
	txRepo := s.repo.WithTx(tx)

	from, to := dueWindow(now, s.cfg.DueWindow)
	due, err := txRepo.Notification.ListDue(ctx, from, to)
	if err != nil {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("查询到期通知失败", zap.Error(err))
		return nil, err
	}

	// 按收件人分组，保持 send_at 升序
	order := make([]string, 0)
	byRecipient := make(map[string][]model.Notification)
	for _, n := range due {
		if _, ok := byRecipient[n.RecipientID]; !ok {
			order = append(order, n.RecipientID)
		}
		byRecipient[n.RecipientID] = append(byRecipient[n.RecipientID], n)
	}

	for _, recipientID := range order {
		if err := s.deliverForRecipient(ctx, txRepo, byRecipient[recipientID], now, report); err != nil {
			// 单收件人失败不阻断批次中的其他收件人
			s.logger.Error("收件人投递失败",
				zap.String("recipient_id", recipientID), zap.Error(err))
			report.Failed++
		}
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交投递事务失败", zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("投递周期完成",
		zap.Int("due", len(due)),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// deliverForRecipient 按类型顺序处理一个收件人的全部到期通知
func (s *notificationCenter) deliverForRecipient(
	ctx context.Context,
	repo *repository.Repository,
	due []model.Notification,
	now time.Time,
	report *DeliveryReport,
) error {
	recipient := due[0].Recipient
	if recipient == nil {
		// ListDue 必定带出收件人；缺失说明数据损坏
		report.Skipped += len(due)
		return nil
	}

	// 已退订：全部搁置，保持 active 等待恢复
	if recipient.Status == model.StatusQuit {
		report.Skipped += len(due)
		return nil
	}

	phone := recipient.ReachablePhone()
	if phone == "" {
		// 本人与主联系人都无号码：记为送达失败并跳过，下周期重新评估
		s.logger.Warn("收件人无可达号码，跳过投递",
			zap.String("recipient_id", recipient.UserID))
		report.Failed += len(due)
		return nil
	}

	byType := make(map[string][]model.Notification)
	for _, n := range due {
		byType[n.Type] = append(byType[n.Type], n)
	}

	// 各类型独立过滤，同一次调用中多个类型可先后触发
	if err := s.deliverWelcome(ctx, repo, recipient, phone, byType[model.NotificationWelcome], now, report); err != nil {
		return err
	}
	if err := s.deliverGrouped(ctx, repo, recipient, phone, byType[model.NotificationRefill], model.NotificationRefill, now, report); err != nil {
		return err
	}
	if err := s.deliverGrouped(ctx, repo, recipient, phone, byType[model.NotificationMedication], model.NotificationMedication, now, report); err != nil {
		return err
	}
	if err := s.deliverOneByOne(ctx, repo, recipient, phone, byType[model.NotificationSafetyNet], model.MessageSafetyNet, now, report); err != nil {
		return err
	}
	if err := s.deliverOneByOne(ctx, repo, recipient, phone, byType[model.NotificationStaticOneOff], model.MessageStaticOneOff, now, report); err != nil {
		return err
	}
	if err := s.deliverRepeats(ctx, repo, recipient, phone, byType[model.NotificationRepeat], now, report); err != nil {
		return err
	}
	return nil
}

// ────────────────────── 欢迎短信 ──────────────────────
//
// 仅 NEW 状态投递；送达后收件人 NEW → ACTIVE，通知停用。
// 重复运行投递周期不会重发（通知已停用、状态已非 NEW）。

func (s *notificationCenter) deliverWelcome(
	ctx context.Context,
	repo *repository.Repository,
	recipient *model.User,
	phone string,
	notifications []model.Notification,
	now time.Time,
	report *DeliveryReport,
) error {
	if len(notifications) == 0 {
		return nil
	}
	if recipient.Status != model.StatusNew {
		report.Skipped += len(notifications)
		return nil
	}

	n := notifications[0]

	// 已知登记人（医生或同伴患者）使用介绍+说明两段文案，自助登记用简化版
	var body string
	var err error
	if recipient.EnrolledByID != nil {
		enroller, gerr := repo.User.GetByID(ctx, *recipient.EnrolledByID)
		if gerr != nil {
			return gerr
		}
		body, err = s.renderer.Render("welcome_enrolled", map[string]interface{}{
			"Name":         recipient.Name,
			"EnrollerName": enroller.Name,
		})
	} else {
		body, err = s.renderer.Render("welcome_self", map[string]interface{}{
			"Name": recipient.Name,
		})
	}
	if err != nil {
		return err
	}

	if err := s.send(ctx, phone, body, report); err != nil {
		return nil // 网关失败已记账，保持通知原状待下周期
	}

	if _, err := s.createMessage(ctx, repo, recipient, model.MessageWelcome, body, notifications[:1], nil, nil, now); err != nil {
		return err
	}

	recipient.Status = model.StatusActive
	if err := repo.User.Update(ctx, recipient); err != nil {
		return err
	}

	if err := s.finishDelivered(ctx, repo, &n, now); err != nil {
		return err
	}
	report.Skipped += len(notifications) - 1
	return nil
}

// ────────────────────── 取药/服药提醒 ──────────────────────
//
// 两者共用“按药名分组渲染清单”的管线，仅资格过滤与反馈创建不同：
//   - REFILL 要求处方未取药；取药后由 MEDICATION 路径接管
//   - MEDICATION 要求处方已取药；未取药时保持 active 不投递（设计上的背压）
//     且每条通知创建一条反馈记账

func (s *notificationCenter) deliverGrouped(
	ctx context.Context,
	repo *repository.Repository,
	recipient *model.User,
	phone string,
	notifications []model.Notification,
	notificationType string,
	now time.Time,
	report *DeliveryReport,
) error {
	if len(notifications) == 0 {
		return nil
	}
	if recipient.Status != model.StatusActive {
		report.Skipped += len(notifications)
		return nil
	}

	eligible := make([]model.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.Prescription == nil {
			report.Skipped++
			continue
		}
		wantFilled := notificationType == model.NotificationMedication
		if n.Prescription.Filled != wantFilled {
			report.Skipped++
			continue
		}
		eligible = append(eligible, n)
	}
	if len(eligible) == 0 {
		return nil
	}

	templateName := "refill_reminder"
	messageType := model.MessageRefill
	if notificationType == model.NotificationMedication {
		templateName = "medication_reminder"
		messageType = model.MessageMedication
	}

	for _, chunk := range mergeNotifications(eligible, s.cfg.MergeInterval) {
		drugs := make([]string, 0, len(chunk))
		for _, n := range chunk {
			drugs = append(drugs, n.Prescription.DrugName)
		}

		body, err := s.renderer.Render(templateName, map[string]interface{}{"Drugs": drugs})
		if err != nil {
			return err
		}
		body = render.TrimToLimit(body, s.cfg.MaxBodyRunes)

		if err := s.send(ctx, phone, body, report); err != nil {
			return nil
		}

		// 服药提醒附带依从性记账：每条通知一条反馈
		var feedbacks []model.Feedback
		if notificationType == model.NotificationMedication {
			for _, n := range chunk {
				f := model.Feedback{
					Type:           model.NotificationMedication,
					NotificationID: n.NotificationID,
					PrescriptionID: *n.PrescriptionID,
					SentAt:         now,
				}
				if err := repo.Feedback.Create(ctx, &f); err != nil {
					return err
				}
				feedbacks = append(feedbacks, f)
			}
		}

		if _, err := s.createMessage(ctx, repo, recipient, messageType, body, chunk, feedbacks, nil, now); err != nil {
			return err
		}

		for i := range chunk {
			if err := s.finishDelivered(ctx, repo, &chunk[i], now); err != nil {
				return err
			}
		}
	}
	return nil
}

// ────────────────────── 安全网 / 一次性文案 ──────────────────────
//
// 正文在创建通知时已定稿（Content 列），逐条发送不合并：
// 安全网每条针对一份具体的依从性报告，合并会混淆语义。

func (s *notificationCenter) deliverOneByOne(
	ctx context.Context,
	repo *repository.Repository,
	recipient *model.User,
	phone string,
	notifications []model.Notification,
	messageType string,
	now time.Time,
	report *DeliveryReport,
) error {
	for i := range notifications {
		n := notifications[i]
		if recipient.Status != model.StatusActive {
			report.Skipped++
			continue
		}
		if n.Content == nil || *n.Content == "" {
			// 无正文的一次性通知属于数据缺陷，停用避免每周期重扫
			s.logger.Warn("一次性通知缺少正文，已停用",
				zap.String("notification_id", n.NotificationID))
			if err := s.finishDelivered(ctx, repo, &n, now); err != nil {
				return err
			}
			continue
		}

		body := render.TrimToLimit(*n.Content, s.cfg.MaxBodyRunes)
		if err := s.send(ctx, phone, body, report); err != nil {
			return nil
		}
		if _, err := s.createMessage(ctx, repo, recipient, messageType, body, notifications[i:i+1], nil, nil, now); err != nil {
			return err
		}
		if err := s.finishDelivered(ctx, repo, &n, now); err != nil {
			return err
		}
	}
	return nil
}

// ────────────────────── 重发历史消息 ──────────────────────
//
// “稍后提醒”产生的通知：重发所引用消息的正文，且新消息继承
// 原消息类型，使患者的回答能按原会话语境归类。

func (s *notificationCenter) deliverRepeats(
	ctx context.Context,
	repo *repository.Repository,
	recipient *model.User,
	phone string,
	notifications []model.Notification,
	now time.Time,
	report *DeliveryReport,
) error {
	for i := range notifications {
		n := notifications[i]
		if recipient.Status != model.StatusActive {
			report.Skipped++
			continue
		}
		if n.PreviousMessage == nil {
			s.logger.Warn("重发通知缺少原消息，已停用",
				zap.String("notification_id", n.NotificationID))
			if err := s.finishDelivered(ctx, repo, &n, now); err != nil {
				return err
			}
			continue
		}

		prev := n.PreviousMessage
		if err := s.send(ctx, phone, prev.Content, report); err != nil {
			return nil
		}
		if _, err := s.createMessage(ctx, repo, recipient, prev.Type, prev.Content, notifications[i:i+1], nil, &prev.MessageID, now); err != nil {
			return err
		}
		if err := s.finishDelivered(ctx, repo, &n, now); err != nil {
			return err
		}
	}
	return nil
}

// ── 内部辅助方法 ──

// send 发送短信并记账；错误返回给调用方决定是否继续该收件人
func (s *notificationCenter) send(ctx context.Context, phone, body string, report *DeliveryReport) error {
	if err := s.gateway.Send(ctx, phone, body); err != nil {
		s.logger.Error("短信网关发送失败", zap.String("to", phone), zap.Error(err))
		report.Failed++
		return err
	}
	report.Sent++
	return nil
}

// createMessage 创建消息记录并关联通知与反馈
// 不期待回复的类型创建时即自行闭合（responded_at = sent_at）
func (s *notificationCenter) createMessage(
	ctx context.Context,
	repo *repository.Repository,
	recipient *model.User,
	messageType, body string,
	notifications []model.Notification,
	feedbacks []model.Feedback,
	previousMessageID *string,
	now time.Time,
) (*model.Message, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := repo.Message.CountByTypeSince(ctx, recipient.UserID, messageType, dayStart)
	if err != nil {
		return nil, err
	}

	var responded *time.Time
	if !model.ExpectsReply(messageType) {
		t := now
		responded = &t
	}

	// 关联集只要主键，避免 m2m 级联重写通知本体
	linked := make([]model.Notification, len(notifications))
	for i, n := range notifications {
		linked[i] = model.Notification{NotificationID: n.NotificationID}
	}

	m := &model.Message{
		RecipientID:       recipient.UserID,
		Type:              messageType,
		Content:           body,
		SentAt:            now,
		RespondedAt:       responded,
		PreviousMessageID: previousMessageID,
		DaySeq:            int(count) + 1,
		Notifications:     linked,
		Feedbacks:         feedbacks,
	}
	if err := repo.Message.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// finishDelivered 送达后的通知记账：循环节奏推进到 now 之后，一次性停用
func (s *notificationCenter) finishDelivered(
	ctx context.Context,
	repo *repository.Repository,
	n *model.Notification,
	now time.Time,
) error {
	n.TimesSent++
	if n.Recurring() {
		n.SendAt = NextSendTime(n.Cadence, n.SendAt, now)
	} else {
		n.Active = false
	}
	return repo.Notification.Save(ctx, n)
}
