package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/minqi/smartdose-sub000/internal/model"
	"github.com/minqi/smartdose-sub000/internal/repository"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%d", m.seq)
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m.withContacts(u), nil
}

func (m *mockUserRepo) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	for _, u := range m.users {
		if u.Phone != nil && *u.Phone == phone {
			return m.withContacts(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.UserID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) List(_ context.Context, role string, offset, limit int) ([]model.User, int64, error) {
	var result []model.User
	for _, u := range m.users {
		if role != "" && u.Role != role {
			continue
		}
		result = append(result, *u)
	}
	total := int64(len(result))
	if offset >= len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

// withContacts 模拟 Preload：填充主联系人与登记人
func (m *mockUserRepo) withContacts(u *model.User) *model.User {
	if u.PrimaryContactID != nil {
		u.PrimaryContact = m.users[*u.PrimaryContactID]
	}
	if u.EnrolledByID != nil {
		u.EnrolledBy = m.users[*u.EnrolledByID]
	}
	return u
}

// ── Mock PrescriptionRepository ──

type mockPrescriptionRepo struct {
	prescriptions map[string]*model.Prescription
	users         *mockUserRepo
	seq           int
}

func newMockPrescriptionRepo(users *mockUserRepo) *mockPrescriptionRepo {
	return &mockPrescriptionRepo{prescriptions: make(map[string]*model.Prescription), users: users}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	if p.PrescriptionID == "" {
		m.seq++
		p.PrescriptionID = fmt.Sprintf("rx-%d", m.seq)
	}
	m.prescriptions[p.PrescriptionID] = p
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id string) (*model.Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (m *mockPrescriptionRepo) Update(_ context.Context, p *model.Prescription) error {
	if _, ok := m.prescriptions[p.PrescriptionID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.prescriptions[p.PrescriptionID] = p
	return nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID string) ([]model.Prescription, error) {
	var result []model.Prescription
	for _, p := range m.prescriptions {
		if p.PatientID == patientID {
			result = append(result, *p)
		}
	}
	return result, nil
}

// ── Mock SafetyNetContactRepository ──

type mockSafetyNetContactRepo struct {
	contacts map[string]*model.SafetyNetContact
	seq      int
}

func newMockSafetyNetContactRepo() *mockSafetyNetContactRepo {
	return &mockSafetyNetContactRepo{contacts: make(map[string]*model.SafetyNetContact)}
}

func (m *mockSafetyNetContactRepo) Create(_ context.Context, c *model.SafetyNetContact) error {
	if c.SafetyNetContactID == "" {
		m.seq++
		c.SafetyNetContactID = fmt.Sprintf("snc-%d", m.seq)
	}
	m.contacts[c.SafetyNetContactID] = c
	return nil
}

func (m *mockSafetyNetContactRepo) ListByPatient(_ context.Context, patientID string) ([]model.SafetyNetContact, error) {
	var result []model.SafetyNetContact
	for _, c := range m.contacts {
		if c.PatientID == patientID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SafetyNetContactID < result[j].SafetyNetContactID
	})
	return result, nil
}

func (m *mockSafetyNetContactRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.contacts, id)
	return nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	notifications map[string]*model.Notification
	users         *mockUserRepo
	prescriptions *mockPrescriptionRepo
	messages      *mockMessageRepo
	seq           int
	saveErr       error // 注入 Save 失败，模拟并发冲突
}

func newMockNotificationRepo(users *mockUserRepo, prescriptions *mockPrescriptionRepo) *mockNotificationRepo {
	return &mockNotificationRepo{
		notifications: make(map[string]*model.Notification),
		users:         users,
		prescriptions: prescriptions,
	}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if n.NotificationID == "" {
		m.seq++
		n.NotificationID = fmt.Sprintf("ntf-%d", m.seq)
	}
	if n.Version == 0 {
		n.Version = 1
	}
	stored := *n
	m.notifications[n.NotificationID] = &stored
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	n, ok := m.notifications[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m.loaded(n), nil
}

func (m *mockNotificationRepo) ListDue(_ context.Context, from, to time.Time) ([]model.Notification, error) {
	var result []model.Notification
	for _, n := range m.notifications {
		if !n.Active {
			continue
		}
		if n.SendAt.Before(from) || n.SendAt.After(to) {
			continue
		}
		result = append(result, *m.loaded(n))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SendAt.Equal(result[j].SendAt) {
			return result[i].NotificationID < result[j].NotificationID
		}
		return result[i].SendAt.Before(result[j].SendAt)
	})
	return result, nil
}

func (m *mockNotificationRepo) Save(_ context.Context, n *model.Notification) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	stored, ok := m.notifications[n.NotificationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != n.Version {
		return fmt.Errorf("版本冲突: 期望 %d 实际 %d", n.Version, stored.Version)
	}
	n.Version++
	updated := *n
	updated.Recipient = nil
	updated.Prescription = nil
	updated.PreviousMessage = nil
	m.notifications[n.NotificationID] = &updated
	return nil
}

func (m *mockNotificationRepo) ListActiveByPrescription(_ context.Context, prescriptionID string, notificationType string) ([]model.Notification, error) {
	var result []model.Notification
	for _, n := range m.notifications {
		if !n.Active || n.PrescriptionID == nil || *n.PrescriptionID != prescriptionID {
			continue
		}
		if notificationType != "" && n.Type != notificationType {
			continue
		}
		result = append(result, *m.loaded(n))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SendAt.Before(result[j].SendAt) })
	return result, nil
}

func (m *mockNotificationRepo) ListActiveByRecipient(_ context.Context, recipientID string) ([]model.Notification, error) {
	var result []model.Notification
	for _, n := range m.notifications {
		if !n.Active || n.RecipientID != recipientID {
			continue
		}
		result = append(result, *m.loaded(n))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SendAt.Before(result[j].SendAt) })
	return result, nil
}

// loaded 模拟关联加载
func (m *mockNotificationRepo) loaded(n *model.Notification) *model.Notification {
	out := *n
	if u, ok := m.users.users[n.RecipientID]; ok {
		out.Recipient = m.users.withContacts(u)
	}
	if n.PrescriptionID != nil {
		out.Prescription = m.prescriptions.prescriptions[*n.PrescriptionID]
	}
	if n.PreviousMessageID != nil && m.messages != nil {
		out.PreviousMessage = m.messages.messages[*n.PreviousMessageID]
	}
	return &out
}

// ── Mock MessageRepository ──

type mockMessageRepo struct {
	messages      map[string]*model.Message
	notifications *mockNotificationRepo
	seq           int
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[string]*model.Message)}
}

func (m *mockMessageRepo) Create(_ context.Context, msg *model.Message) error {
	if msg.MessageID == "" {
		for {
			m.seq++
			id := fmt.Sprintf("msg-%d", m.seq)
			if _, taken := m.messages[id]; !taken {
				msg.MessageID = id
				break
			}
		}
	}
	stored := *msg
	m.messages[msg.MessageID] = &stored
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m.loaded(msg), nil
}

func (m *mockMessageRepo) MostRecentUnanswered(_ context.Context, recipientID string) (*model.Message, error) {
	var candidates []*model.Message
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID && msg.RespondedAt == nil {
			candidates = append(candidates, msg)
		}
	}
	if len(candidates) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SentAt.Equal(candidates[j].SentAt) {
			return candidates[i].MessageID > candidates[j].MessageID
		}
		return candidates[i].SentAt.After(candidates[j].SentAt)
	})
	return m.loaded(candidates[0]), nil
}

func (m *mockMessageRepo) Update(_ context.Context, msg *model.Message) error {
	stored, ok := m.messages[msg.MessageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.RespondedAt = msg.RespondedAt
	return nil
}

func (m *mockMessageRepo) CountByTypeSince(_ context.Context, recipientID, messageType string, since time.Time) (int64, error) {
	var count int64
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID && msg.Type == messageType && !msg.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// loaded 模拟 Preload：把只带主键的关联补成完整记录
func (m *mockMessageRepo) loaded(msg *model.Message) *model.Message {
	out := *msg
	if m.notifications != nil {
		full := make([]model.Notification, 0, len(msg.Notifications))
		for _, n := range msg.Notifications {
			if stored, ok := m.notifications.notifications[n.NotificationID]; ok {
				full = append(full, *m.notifications.loaded(stored))
			} else {
				full = append(full, n)
			}
		}
		out.Notifications = full
	}
	if msg.PreviousMessageID != nil {
		out.PreviousMessage = m.messages[*msg.PreviousMessageID]
	}
	return &out
}

// ── Mock FeedbackRepository ──

type mockFeedbackRepo struct {
	feedbacks     map[string]*model.Feedback
	prescriptions *mockPrescriptionRepo
	users         *mockUserRepo
	seq           int
}

func newMockFeedbackRepo(prescriptions *mockPrescriptionRepo, users *mockUserRepo) *mockFeedbackRepo {
	return &mockFeedbackRepo{
		feedbacks:     make(map[string]*model.Feedback),
		prescriptions: prescriptions,
		users:         users,
	}
}

func (m *mockFeedbackRepo) Create(_ context.Context, f *model.Feedback) error {
	if f.FeedbackID == "" {
		m.seq++
		f.FeedbackID = fmt.Sprintf("fb-%d", m.seq)
	}
	stored := *f
	m.feedbacks[f.FeedbackID] = &stored
	return nil
}

func (m *mockFeedbackRepo) Update(_ context.Context, f *model.Feedback) error {
	if _, ok := m.feedbacks[f.FeedbackID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *f
	m.feedbacks[f.FeedbackID] = &stored
	return nil
}

func (m *mockFeedbackRepo) ListMedicationInWindow(_ context.Context, start, finish time.Time) ([]model.Feedback, error) {
	var result []model.Feedback
	for _, f := range m.feedbacks {
		if f.Type != model.NotificationMedication {
			continue
		}
		if f.SentAt.Before(start) || f.SentAt.After(finish) {
			continue
		}
		p := m.prescriptions.prescriptions[f.PrescriptionID]
		if p == nil || !p.SafetyNetOn {
			continue
		}
		out := *f
		out.Prescription = p
		result = append(result, out)
	}
	return result, nil
}

func (m *mockFeedbackRepo) ListByPatientInWindow(_ context.Context, start, finish time.Time) ([]model.Feedback, error) {
	var result []model.Feedback
	for _, f := range m.feedbacks {
		if f.Type != model.NotificationMedication {
			continue
		}
		if f.SentAt.Before(start) || f.SentAt.After(finish) {
			continue
		}
		out := *f
		if p := m.prescriptions.prescriptions[f.PrescriptionID]; p != nil {
			loaded := *p
			loaded.Patient = m.users.users[p.PatientID]
			out.Prescription = &loaded
		}
		result = append(result, out)
	}
	return result, nil
}

// ── 测试装配 ──

// mockRepos 聚合全部 mock，便于测试中直接操作底层数据
type mockRepos struct {
	users         *mockUserRepo
	prescriptions *mockPrescriptionRepo
	contacts      *mockSafetyNetContactRepo
	notifications *mockNotificationRepo
	messages      *mockMessageRepo
	feedbacks     *mockFeedbackRepo
}

func newMockRepository() (*repository.Repository, *mockRepos) {
	users := newMockUserRepo()
	prescriptions := newMockPrescriptionRepo(users)
	contacts := newMockSafetyNetContactRepo()
	notifications := newMockNotificationRepo(users, prescriptions)
	messages := newMockMessageRepo()
	notifications.messages = messages
	messages.notifications = notifications
	feedbacks := newMockFeedbackRepo(prescriptions, users)

	repo := &repository.Repository{
		User:             users,
		Prescription:     prescriptions,
		SafetyNetContact: contacts,
		Notification:     notifications,
		Message:          messages,
		Feedback:         feedbacks,
	}
	return repo, &mockRepos{
		users:         users,
		prescriptions: prescriptions,
		contacts:      contacts,
		notifications: notifications,
		messages:      messages,
		feedbacks:     feedbacks,
	}
}

// ── Fake 短信网关 ──

type sentSMS struct {
	to   string
	body string
}

type fakeGateway struct {
	sent    []sentSMS
	failAll bool
}

func (g *fakeGateway) Send(_ context.Context, to, body string) error {
	if g.failAll {
		return fmt.Errorf("网关不可用")
	}
	g.sent = append(g.sent, sentSMS{to: to, body: body})
	return nil
}
