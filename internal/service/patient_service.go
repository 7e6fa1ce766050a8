package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/dto"
	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ── 患者模块错误 ──
var (
	ErrPhoneTaken    = errors.New("该手机号已被其他用户使用")
	ErrUnreachable   = errors.New("患者本人与主联系人都没有手机号，无法送达短信")
	ErrBadWelcomeAt  = errors.New("欢迎短信时间格式应为 RFC3339")
	ErrContactNoPhone = errors.New("安全网联系人没有手机号")
)

// PatientService 患者登记与安全网联系人管理
type PatientService interface {
	// Enroll 登记患者并排程欢迎短信；送达前账户保持 NEW 状态
	Enroll(ctx context.Context, req *dto.EnrollPatientRequest) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context, req *dto.PatientListRequest) ([]model.User, int64, error)
	AddSafetyNetContact(ctx context.Context, patientID string, req *dto.AddSafetyNetContactRequest) (*model.SafetyNetContact, error)
	RemoveSafetyNetContact(ctx context.Context, id, removedBy string) error
}

type patientService struct {
	repo   *repository.Repository
	clock  Clock
	logger *zap.Logger
}

// NewPatientService 创建 PatientService 实例
func NewPatientService(repo *repository.Repository, clock Clock, logger *zap.Logger) PatientService {
	return &patientService{repo: repo, clock: clock, logger: logger}
}

func (s *patientService) Enroll(ctx context.Context, req *dto.EnrollPatientRequest) (*model.User, error) {
	now := s.clock.Now()

	if req.Phone != nil && *req.Phone != "" {
		if _, err := s.repo.User.GetByPhone(ctx, *req.Phone); err == nil {
			return nil, ErrPhoneTaken
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user := &model.User{
		Name:             req.Name,
		Gender:           req.Gender,
		Phone:            req.Phone,
		Role:             req.Role,
		Status:           model.StatusNew,
		PrimaryContactID: req.PrimaryContactID,
		EnrolledByID:     req.EnrolledByID,
	}
	if user.Gender == "" {
		user.Gender = model.GenderUnknown
	}
	if user.Role == "" {
		user.Role = model.RolePatient
	}

	// 必须有可达号码，否则所有提醒都会投递失败
	if user.Phone == nil || *user.Phone == "" {
		if req.PrimaryContactID == nil {
			return nil, ErrUnreachable
		}
		contact, err := s.repo.User.GetByID(ctx, *req.PrimaryContactID)
		if err != nil {
			return nil, err
		}
		if contact.Phone == nil || *contact.Phone == "" {
			return nil, ErrUnreachable
		}
	}

	welcomeAt := now
	if req.WelcomeAt != nil && *req.WelcomeAt != "" {
		t, err := time.Parse(time.RFC3339, *req.WelcomeAt)
		if err != nil {
			return nil, ErrBadWelcomeAt
		}
		welcomeAt = t
	}

	if err := s.repo.User.Create(ctx, user); err != nil {
		return nil, err
	}

	welcome := model.Notification{
		RecipientID: user.UserID,
		Type:        model.NotificationWelcome,
		Cadence:     model.CadenceNone,
		SendAt:      welcomeAt,
		Active:      true,
	}
	if err := s.repo.Notification.Create(ctx, &welcome); err != nil {
		return nil, err
	}

	s.logger.Info("患者登记完成",
		zap.String("user_id", user.UserID),
		zap.Time("welcome_at", welcomeAt))
	return user, nil
}

func (s *patientService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.repo.User.GetByID(ctx, id)
}

func (s *patientService) List(ctx context.Context, req *dto.PatientListRequest) ([]model.User, int64, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return s.repo.User.List(ctx, req.Role, (page-1)*pageSize, pageSize)
}

func (s *patientService) AddSafetyNetContact(
	ctx context.Context,
	patientID string,
	req *dto.AddSafetyNetContactRequest,
) (*model.SafetyNetContact, error) {
	if _, err := s.repo.User.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	contact, err := s.repo.User.GetByID(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.ReachablePhone() == "" {
		return nil, ErrContactNoPhone
	}

	c := &model.SafetyNetContact{
		PatientID:    patientID,
		ContactID:    req.ContactID,
		Relationship: req.Relationship,
	}
	if err := s.repo.SafetyNetContact.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *patientService) RemoveSafetyNetContact(ctx context.Context, id, removedBy string) error {
	return s.repo.SafetyNetContact.Delete(ctx, id, removedBy)
}
