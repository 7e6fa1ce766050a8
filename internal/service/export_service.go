package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoFeedback   = errors.New("该时段没有可统计的服药反馈")
	ErrExportNoReminder   = errors.New("该患者没有活跃的提醒")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 依从性报表导出为 Excel (.xlsx)，按患者 × 药品汇总
//   - 提醒日程导出为 iCalendar (.ics)，循环节奏映射为 RRULE
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置响应头后写入 Response
type ExportService interface {
	// ExportAdherence 导出 [start, finish] 内的依从性报表
	ExportAdherence(ctx context.Context, start, finish time.Time) (*bytes.Buffer, string, error)
	// ExportReminderCalendar 导出某患者的活跃提醒日程
	ExportReminderCalendar(ctx context.Context, patientID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportAdherence — 依从性报表
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 单 Sheet "依从性"
//   - 行：患者 × 药品
//   - 列：患者 | 药品 | 提醒次数 | 确认服药 | 依从率

func (s *exportService) ExportAdherence(ctx context.Context, start, finish time.Time) (*bytes.Buffer, string, error) {
	feedbacks, err := s.repo.Feedback.ListByPatientInWindow(ctx, start, finish)
	if err != nil {
		return nil, "", err
	}
	if len(feedbacks) == 0 {
		return nil, "", ErrExportNoFeedback
	}

	type rowKey struct {
		patient string
		drug    string
	}
	type rowAgg struct {
		total     int
		completed int
	}
	agg := make(map[rowKey]rowAgg)
	for _, fb := range feedbacks {
		if fb.Prescription == nil || fb.Prescription.Patient == nil {
			continue
		}
		k := rowKey{patient: fb.Prescription.Patient.Name, drug: fb.Prescription.DrugName}
		a := agg[k]
		a.total++
		if fb.Completed {
			a.completed++
		}
		agg[k] = a
	}

	keys := make([]rowKey, 0, len(agg))
	for k := range agg {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].patient != keys[j].patient {
			return keys[i].patient < keys[j].patient
		}
		return keys[i].drug < keys[j].drug
	})

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "依从性"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "B", 18)
	f.SetColWidth(sheetName, "C", "E", 12)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("依从性报表 %s ~ %s",
		start.Format("2006-01-02"), finish.Format("2006-01-02")))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	headers := []string{"患者", "药品", "提醒次数", "确认服药", "依从率"}
	for i, h := range headers {
		cellName, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheetName, cellName, h)
	}

	row := 3
	for _, k := range keys {
		a := agg[k]
		rate := float64(a.completed) / float64(a.total)
		values := []interface{}{k.patient, k.drug, a.total, a.completed, fmt.Sprintf("%.0f%%", rate*100)}
		for i, v := range values {
			cellName, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheetName, cellName, v)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("依从性报表_%s.xlsx", finish.Format("20060102"))
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportReminderCalendar — 提醒日程 ICS
// ═══════════════════════════════════════════════════════════
//
// 每条活跃提醒映射为一个 VEVENT，循环节奏映射为 RRULE；
// 日历可直接订阅进患者或照护人的手机日历

func (s *exportService) ExportReminderCalendar(ctx context.Context, patientID string) (*bytes.Buffer, string, error) {
	patient, err := s.repo.User.GetByID(ctx, patientID)
	if err != nil {
		return nil, "", err
	}
	notifications, err := s.repo.Notification.ListActiveByRecipient(ctx, patientID)
	if err != nil {
		return nil, "", err
	}
	if len(notifications) == 0 {
		return nil, "", ErrExportNoReminder
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//smartdose//reminder//CN")

	for _, n := range notifications {
		event := cal.AddEvent(n.NotificationID + "@smartdose")
		event.SetCreatedTime(n.CreatedAt)
		event.SetStartAt(n.SendAt)
		event.SetEndAt(n.SendAt.Add(15 * time.Minute))
		event.SetSummary(eventSummary(&n))
		if rrule := cadenceRrule(n.Cadence); rrule != "" {
			event.AddRrule(rrule)
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	filename := fmt.Sprintf("用药提醒_%s.ics", patient.Name)
	return buf, filename, nil
}

// ── 辅助函数 ──

func eventSummary(n *model.Notification) string {
	drug := ""
	if n.Prescription != nil {
		drug = n.Prescription.DrugName
	}
	switch n.Type {
	case model.NotificationMedication:
		return fmt.Sprintf("服药提醒：%s", drug)
	case model.NotificationRefill:
		return fmt.Sprintf("取药提醒：%s", drug)
	default:
		return "用药提醒"
	}
}

func cadenceRrule(cadence string) string {
	switch cadence {
	case model.CadenceDaily:
		return "FREQ=DAILY"
	case model.CadenceWeekly:
		return "FREQ=WEEKLY"
	case model.CadenceMonthly:
		return "FREQ=MONTHLY"
	case model.CadenceYearly:
		return "FREQ=YEARLY"
	default:
		return ""
	}
}
