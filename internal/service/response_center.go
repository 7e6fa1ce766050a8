package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/config"
	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/render"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// 会话应答中心
// ═══════════════════════════════════════════════════════════
//
// 入站短信没有会话标识，语境完全由“该号码最近一条未回复的消息”
// 决定：消息类型即状态，按类型分派处理器。处理器返回的文本由
// webhook 同步回给短信网关，不走出站网关。
//
// 一条入站回复即一个事务：分派到的处理器往往连写多张表
// （处方、通知、反馈、消息），半途失败必须整体回滚。

// ErrUnknownSender 发信号码不属于任何在册用户
var ErrUnknownSender = errors.New("未知的发信号码")

// ResponseCenter 入站回复处理接口
type ResponseCenter interface {
	// ProcessResponse 处理一条入站短信，返回应答文本；
	// 无在册用户（或已退订且非恢复指令）返回 ErrUnknownSender
	ProcessResponse(ctx context.Context, from, body string) (string, error)
}

type responseCenter struct {
	repo     *repository.Repository
	renderer render.Renderer
	cfg      *config.ReminderConfig
	clock    Clock
	logger   *zap.Logger
}

// NewResponseCenter 创建 ResponseCenter 实例
func NewResponseCenter(
	repo *repository.Repository,
	renderer render.Renderer,
	cfg *config.ReminderConfig,
	clock Clock,
	logger *zap.Logger,
) ResponseCenter {
	return &responseCenter{
		repo:     repo,
		renderer: renderer,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// ── 关键词与固定应答文案 ──

var (
	yesKeywords    = []string{"是", "是的", "好", "好的", "吃了", "取了", "已服用", "y", "yes", "ok"}
	noKeywords     = []string{"否", "没", "没有", "还没", "没吃", "n", "no"}
	quitKeywords   = []string{"退订", "停止", "stop", "quit", "unsubscribe"}
	resumeKeywords = []string{"恢复", "继续", "start", "resume"}
	infoKeywords   = []string{"信息", "药品信息", "info"}
)

const (
	replyQuitConfirm      = "您已退订全部用药提醒。随时回复「恢复」即可重新开启。"
	replyResumeConfirm    = "欢迎回来！用药提醒已重新开启。"
	replyNothingPending   = "您好，目前没有等待您回复的问题。如需帮助请联系您的医生。"
	replyYesNoExpected    = "抱歉，没能理解您的回复。请回复「是」或「否」。"
	replyLetterExpected   = "抱歉，没能理解您的回复。请回复上一条短信中的字母（a-g）。"
	replyMedicationAck    = "已记录您已服药，继续保持！"
	replyFeedbackThanks   = "已记录，谢谢您的反馈。"
	replyOpenEndedPrompt  = "请用文字简单描述一下原因，我们会记录下来转达给您的医生。"
	replyOpenEndedThanks  = "已记录您的说明，谢谢。您的医生可以看到这条反馈。"
	replyRepeatScheduled  = "好的，我们稍后会再次提醒您。"
	replyTimeInvalid      = "这个时间看起来不太对，请按「8:30pm」或「20:30」的格式回复。"
	replyNoDrugInfo       = "这份处方暂时没有药品说明，详情请咨询您的医生。"
)

// reasonOther 选 g 时的占位原因；患者随后的自由文本会覆盖它
const reasonOther = "其他"

// 服药问卷 b–f 对应的原因记录
var medicationReasons = map[string]string{
	"b": "忘记了",
	"c": "药吃完了",
	"d": "感觉不舒服，不想吃",
	"e": "觉得没有效果",
	"f": "担心副作用",
}

// 取药问卷 b–f 对应的原因记录
var refillReasons = map[string]string{
	"b": "忘记了",
	"c": "没时间去药房",
	"d": "药房太远",
	"e": "费用问题",
	"f": "觉得不需要继续用药",
}

// ProcessResponse 入站回复处理入口；整条回复在一个事务内执行
func (s *responseCenter) ProcessResponse(ctx context.Context, from, body string) (string, error) {
	now := s.clock.Now()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启应答事务失败", zap.Error(err))
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	reply, err := s.process(ctx, s.repo.WithTx(tx), from, body, now)
	if err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return "", err
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交应答事务失败", zap.Error(err))
			return "", err
		}
	}
	return reply, nil
}

// process 事务内的分派逻辑
func (s *responseCenter) process(
	ctx context.Context,
	repo *repository.Repository,
	from, body string,
	now time.Time,
) (string, error) {
	normalized := normalizeReply(body)

	user, err := repo.User.GetByPhone(ctx, from)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("忽略未知号码的入站短信", zap.String("from", from))
			return "", ErrUnknownSender
		}
		return "", err
	}

	// 退订/恢复优先于一切会话语境
	if matchKeyword(normalized, quitKeywords) {
		user.Status = model.StatusQuit
		if err := repo.User.Update(ctx, user); err != nil {
			return "", err
		}
		s.logger.Info("用户退订", zap.String("user_id", user.UserID))
		return replyQuitConfirm, nil
	}
	if user.Status == model.StatusQuit {
		if !matchKeyword(normalized, resumeKeywords) {
			// 已退订用户的其余来信一律静默
			return "", ErrUnknownSender
		}
		user.Status = model.StatusActive
		if err := repo.User.Update(ctx, user); err != nil {
			return "", err
		}
		s.logger.Info("用户恢复订阅", zap.String("user_id", user.UserID))
		return replyResumeConfirm, nil
	}

	msg, err := repo.Message.MostRecentUnanswered(ctx, user.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return replyNothingPending, nil
		}
		return "", err
	}

	switch msg.Type {
	case model.MessageMedication:
		return s.handleMedication(ctx, repo, user, msg, normalized, now)
	case model.MessageMedicationQuestionnaire:
		return s.handleQuestionnaire(ctx, repo, user, msg, normalized, now, medicationReasons)
	case model.MessageRefill:
		return s.handleRefill(ctx, repo, user, msg, normalized, now)
	case model.MessageRefillQuestionnaire:
		return s.handleQuestionnaire(ctx, repo, user, msg, normalized, now, refillReasons)
	case model.MessageOpenEndedQuestion:
		return s.handleOpenEnded(ctx, repo, user, msg, strings.TrimSpace(body), now)
	default:
		// 自行闭合的类型不会出现在这里；兜底保持状态不变
		s.logger.Warn("未预期的未回复消息类型",
			zap.String("message_id", msg.MessageID), zap.String("type", msg.Type))
		return replyNothingPending, nil
	}
}

// ────────────────────── 服药提醒的回复 ──────────────────────

func (s *responseCenter) handleMedication(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	reply string,
	now time.Time,
) (string, error) {
	switch {
	case matchKeyword(reply, yesKeywords):
		if err := s.resolveFeedbacks(ctx, repo, msg, "", true, now); err != nil {
			return "", err
		}
		if err := s.closeMessage(ctx, repo, msg, now); err != nil {
			return "", err
		}
		if err := s.recordReply(ctx, repo, user, model.MessageMedicationAck, replyMedicationAck, &msg.MessageID, now); err != nil {
			return "", err
		}
		return replyMedicationAck, nil

	case matchKeyword(reply, noKeywords):
		return s.openQuestionnaire(ctx, repo, user, msg, model.MessageMedicationQuestionnaire, "medication_questionnaire", now)

	case matchKeyword(reply, infoKeywords):
		// 答疑不消耗会话：原问题保持未回复，患者稍后仍可答是/否
		return s.drugInfoReply(ctx, repo, user, msg, now)
	}

	// 钟点回复 → 调整关联通知的提醒时刻
	if hour, minute, terr := ParseTimeOfDay(reply); terr == nil {
		return s.rescheduleLinked(ctx, repo, msg, hour, minute, now)
	} else if errors.Is(terr, ErrInvalidTimeOfDay) {
		return replyTimeInvalid, nil
	}

	// 无法归类：消息保持未回复，下一条来信仍落在同一语境
	return replyYesNoExpected, nil
}

// ────────────────────── 取药提醒的回复 ──────────────────────

func (s *responseCenter) handleRefill(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	reply string,
	now time.Time,
) (string, error) {
	switch {
	case matchKeyword(reply, yesKeywords):
		return s.confirmRefill(ctx, repo, user, msg, now)
	case matchKeyword(reply, noKeywords):
		return s.openQuestionnaire(ctx, repo, user, msg, model.MessageRefillQuestionnaire, "refill_questionnaire", now)
	case matchKeyword(reply, infoKeywords):
		return s.drugInfoReply(ctx, repo, user, msg, now)
	}
	return replyYesNoExpected, nil
}

// confirmRefill 已取药：处方置 filled、停用取药通知、
// 记一条已完成的取药反馈，并回告下一次服药提醒时间。
// 中途任何失败由外层事务整体回滚，不会留下半截状态
func (s *responseCenter) confirmRefill(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	now time.Time,
) (string, error) {
	var lines []string
	for i := range msg.Notifications {
		n := &msg.Notifications[i]
		if n.PrescriptionID == nil {
			continue
		}

		prescription, err := repo.Prescription.GetByID(ctx, *n.PrescriptionID)
		if err != nil {
			return "", err
		}
		prescription.Filled = true
		if err := repo.Prescription.Update(ctx, prescription); err != nil {
			return "", err
		}

		// 该处方下的全部取药通知一并停用，合并消息只答一次
		refills, err := repo.Notification.ListActiveByPrescription(ctx, prescription.PrescriptionID, model.NotificationRefill)
		if err != nil {
			return "", err
		}
		for j := range refills {
			refills[j].Active = false
			if err := repo.Notification.Save(ctx, &refills[j]); err != nil {
				return "", err
			}
		}

		responded := now
		f := model.Feedback{
			Type:           model.NotificationRefill,
			NotificationID: n.NotificationID,
			PrescriptionID: prescription.PrescriptionID,
			Completed:      true,
			SentAt:         msg.SentAt,
			RespondedAt:    &responded,
		}
		if err := repo.Feedback.Create(ctx, &f); err != nil {
			return "", err
		}

		// 取药后服药提醒接管；回告它的下一个触发时刻
		meds, err := repo.Notification.ListActiveByPrescription(ctx, prescription.PrescriptionID, model.NotificationMedication)
		if err != nil {
			return "", err
		}
		if len(meds) > 0 {
			line, err := s.renderer.Render("next_medication", map[string]interface{}{
				"Drug": prescription.DrugName,
				"Time": meds[0].SendAt.Format("1月2日 15:04"),
			})
			if err != nil {
				return "", err
			}
			lines = append(lines, line)
		}
	}

	if err := s.closeMessage(ctx, repo, msg, now); err != nil {
		return "", err
	}

	reply := replyFeedbackThanks
	if len(lines) > 0 {
		reply = strings.Join(lines, "\n")
	}
	if err := s.recordReply(ctx, repo, user, model.MessageStaticOneOff, reply, &msg.MessageID, now); err != nil {
		return "", err
	}
	return reply, nil
}

// ────────────────────── 问卷的回复 ──────────────────────
//
// 服药与取药问卷共用处理器，字母语义一致：
//   a    稍后重发原提醒
//   b–f  记录对应原因
//   g    记占位原因后转开放式提问
//
// 原因都写回携带反馈的根消息（原始提醒），问卷自身不带反馈。

func (s *responseCenter) handleQuestionnaire(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	reply string,
	now time.Time,
	reasons map[string]string,
) (string, error) {
	letter := strings.TrimRight(reply, ".。、)")

	switch {
	case letter == "a":
		return s.scheduleRepeat(ctx, repo, user, msg, now)

	case reasons[letter] != "":
		root, err := s.rootWithFeedbacks(ctx, repo, msg)
		if err != nil {
			return "", err
		}
		if err := s.resolveFeedbacks(ctx, repo, root, reasons[letter], false, now); err != nil {
			return "", err
		}
		if err := s.closeMessage(ctx, repo, msg, now); err != nil {
			return "", err
		}
		if err := s.recordReply(ctx, repo, user, model.MessageQuestionnaireResponse, replyFeedbackThanks, &msg.MessageID, now); err != nil {
			return "", err
		}
		return replyFeedbackThanks, nil

	case letter == "g":
		// 先落占位原因：患者就此沉默也不留空白反馈，
		// 后续的自由文本回答会覆盖它
		root, err := s.rootWithFeedbacks(ctx, repo, msg)
		if err != nil {
			return "", err
		}
		if err := s.resolveFeedbacks(ctx, repo, root, reasonOther, false, now); err != nil {
			return "", err
		}
		if err := s.closeMessage(ctx, repo, msg, now); err != nil {
			return "", err
		}
		seq, err := s.nextDaySeq(ctx, repo, user.UserID, model.MessageOpenEndedQuestion, now)
		if err != nil {
			return "", err
		}
		open := &model.Message{
			RecipientID:       user.UserID,
			Type:              model.MessageOpenEndedQuestion,
			Content:           replyOpenEndedPrompt,
			SentAt:            now,
			PreviousMessageID: &msg.MessageID,
			DaySeq:            seq,
		}
		if err := repo.Message.Create(ctx, open); err != nil {
			return "", err
		}
		return replyOpenEndedPrompt, nil
	}

	return replyLetterExpected, nil
}

// scheduleRepeat 「稍后提醒」：创建一条延时的重发通知，指向原始提醒消息
func (s *responseCenter) scheduleRepeat(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	now time.Time,
) (string, error) {
	// 问卷的上一条即原始提醒；缺链时重发问卷自身
	target := msg.MessageID
	if msg.PreviousMessageID != nil {
		target = *msg.PreviousMessageID
	}

	n := model.Notification{
		RecipientID:       user.UserID,
		Type:              model.NotificationRepeat,
		Cadence:           model.CadenceNone,
		SendAt:            now.Add(s.cfg.RepeatDelay),
		Active:            true,
		PreviousMessageID: &target,
	}
	if err := repo.Notification.Create(ctx, &n); err != nil {
		return "", err
	}

	if err := s.closeMessage(ctx, repo, msg, now); err != nil {
		return "", err
	}
	if err := s.recordReply(ctx, repo, user, model.MessageStaticOneOff, replyRepeatScheduled, &msg.MessageID, now); err != nil {
		return "", err
	}
	return replyRepeatScheduled, nil
}

// ────────────────────── 开放式回答 ──────────────────────

func (s *responseCenter) handleOpenEnded(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	body string,
	now time.Time,
) (string, error) {
	// 自由文本挂回带反馈的根消息，覆盖 g 时写入的占位原因
	root, err := s.rootWithFeedbacks(ctx, repo, msg)
	if err != nil {
		return "", err
	}
	if err := s.resolveFeedbacks(ctx, repo, root, body, false, now); err != nil {
		return "", err
	}
	if err := s.closeMessage(ctx, repo, msg, now); err != nil {
		return "", err
	}
	if err := s.recordReply(ctx, repo, user, model.MessageQuestionnaireResponse, replyOpenEndedThanks, &msg.MessageID, now); err != nil {
		return "", err
	}
	return replyOpenEndedThanks, nil
}

// ── 内部辅助方法 ──

// nextDaySeq 当日同收件人同类型消息的下一个序号
func (s *responseCenter) nextDaySeq(
	ctx context.Context,
	repo *repository.Repository,
	recipientID, messageType string,
	now time.Time,
) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := repo.Message.CountByTypeSince(ctx, recipientID, messageType, dayStart)
	if err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

// openQuestionnaire 关闭当前提醒、发出问卷并使之成为新的会话语境
func (s *responseCenter) openQuestionnaire(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	messageType, templateName string,
	now time.Time,
) (string, error) {
	body, err := s.renderer.Render(templateName, nil)
	if err != nil {
		return "", err
	}
	if err := s.closeMessage(ctx, repo, msg, now); err != nil {
		return "", err
	}
	seq, err := s.nextDaySeq(ctx, repo, user.UserID, messageType, now)
	if err != nil {
		return "", err
	}
	q := &model.Message{
		RecipientID:       user.UserID,
		Type:              messageType,
		Content:           body,
		SentAt:            now,
		PreviousMessageID: &msg.MessageID,
		DaySeq:            seq,
	}
	if err := repo.Message.Create(ctx, q); err != nil {
		return "", err
	}
	return body, nil
}

// drugInfoReply 返回关联处方的药品说明；会话语境不变
func (s *responseCenter) drugInfoReply(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	msg *model.Message,
	now time.Time,
) (string, error) {
	var parts []string
	for i := range msg.Notifications {
		n := &msg.Notifications[i]
		if n.PrescriptionID == nil {
			continue
		}
		p, err := repo.Prescription.GetByID(ctx, *n.PrescriptionID)
		if err != nil {
			return "", err
		}
		if p.DrugInfo != nil && *p.DrugInfo != "" {
			parts = append(parts, fmt.Sprintf("%s：%s", p.DrugName, *p.DrugInfo))
		}
	}

	reply := replyNoDrugInfo
	if len(parts) > 0 {
		reply = strings.Join(parts, "\n")
		reply = render.TrimToLimit(reply, s.cfg.MaxBodyRunes)
	}
	if err := s.recordReply(ctx, repo, user, model.MessageStaticOneOff, reply, &msg.MessageID, now); err != nil {
		return "", err
	}
	return reply, nil
}

// rescheduleLinked 把消息关联的循环通知改到患者指定的钟点；
// 目标时刻已过今天则落到明天
func (s *responseCenter) rescheduleLinked(
	ctx context.Context,
	repo *repository.Repository,
	msg *model.Message,
	hour, minute int,
	now time.Time,
) (string, error) {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}

	adjusted := 0
	for i := range msg.Notifications {
		n, err := repo.Notification.GetByID(ctx, msg.Notifications[i].NotificationID)
		if err != nil {
			return "", err
		}
		if !n.Active || !n.Recurring() {
			continue
		}
		n.SendAt = target
		if err := repo.Notification.Save(ctx, n); err != nil {
			return "", err
		}
		adjusted++
	}

	if adjusted == 0 {
		return replyYesNoExpected, nil
	}
	if err := s.closeMessage(ctx, repo, msg, now); err != nil {
		return "", err
	}
	return fmt.Sprintf("好的，提醒时间已调整为每天 %02d:%02d。", hour, minute), nil
}

// resolveFeedbacks 写回消息（或其根）上全部反馈的结果
func (s *responseCenter) resolveFeedbacks(
	ctx context.Context,
	repo *repository.Repository,
	msg *model.Message,
	note string,
	completed bool,
	now time.Time,
) error {
	for i := range msg.Feedbacks {
		f := &msg.Feedbacks[i]
		f.Completed = completed
		if note != "" {
			f.Note = note
		}
		responded := now
		f.RespondedAt = &responded
		if err := repo.Feedback.Update(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// rootWithFeedbacks 沿 previous_message 链回溯到携带反馈的根消息
func (s *responseCenter) rootWithFeedbacks(
	ctx context.Context,
	repo *repository.Repository,
	msg *model.Message,
) (*model.Message, error) {
	cur := msg
	for depth := 0; depth < 8; depth++ {
		if len(cur.Feedbacks) > 0 || cur.PreviousMessageID == nil {
			return cur, nil
		}
		next, err := repo.Message.GetByID(ctx, *cur.PreviousMessageID)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// closeMessage 把消息标记为已回复
func (s *responseCenter) closeMessage(
	ctx context.Context,
	repo *repository.Repository,
	msg *model.Message,
	now time.Time,
) error {
	responded := now
	msg.RespondedAt = &responded
	return repo.Message.Update(ctx, msg)
}

// recordReply 把系统的同步应答落库为一条自行闭合的消息（会话存档用）
func (s *responseCenter) recordReply(
	ctx context.Context,
	repo *repository.Repository,
	user *model.User,
	messageType, body string,
	previousMessageID *string,
	now time.Time,
) error {
	seq, err := s.nextDaySeq(ctx, repo, user.UserID, messageType, now)
	if err != nil {
		return err
	}
	m := &model.Message{
		RecipientID:       user.UserID,
		Type:              messageType,
		Content:           body,
		SentAt:            now,
		RespondedAt:       &now,
		PreviousMessageID: previousMessageID,
		DaySeq:            seq,
	}
	return repo.Message.Create(ctx, m)
}

func normalizeReply(body string) string {
	s := strings.ToLower(strings.TrimSpace(body))
	return strings.Trim(s, "！!。 ")
}

func matchKeyword(reply string, keywords []string) bool {
	for _, k := range keywords {
		if reply == k {
			return true
		}
	}
	return false
}
