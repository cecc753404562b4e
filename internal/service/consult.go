package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/repository"
	"github.com/mmeshcher/academy-store/internal/validation"
)

const (
	consultationsPerPage = 30
	maxConsultName       = 50
	maxConsultText       = 2000
)

// ConsultationInput описывает заявку на консультацию.
type ConsultationInput struct {
	Type             model.ConsultationType
	Name             string
	Phone            string
	SchoolGrade      string
	CurrentScore     string
	TargetUniv       string
	Direction        string
	GradeLevel       string
	Subject          string
	Message          string
	MarketingConsent bool
}

// ConsultationQuery задаёт выборку заявок.
type ConsultationQuery struct {
	Type   model.ConsultationType
	Status model.ConsultationStatus
	Query  string
	Page   int
}

// ConsultationUpdate описывает правку заявки администратором. Nil-поля не меняются.
type ConsultationUpdate struct {
	Status             *model.ConsultationStatus
	AdminMemo          *string
	ClearChangeRequest bool
}

// CreateConsultation сохраняет заявку и ставит в очередь уведомления заявителю и администратору.
// Результат доставки уведомлений не влияет на ответ.
func (s *Service) CreateConsultation(ctx context.Context, in ConsultationInput) (*model.Consultation, error) {
	name := strings.TrimSpace(in.Name)
	phone := validation.Digits(in.Phone)
	if name == "" || phone == "" || in.Type == "" {
		return nil, invalid("", "name, phone and type are required")
	}
	if utf8.RuneCountInString(name) > maxConsultName {
		return nil, invalid("name", "too long")
	}
	if !validation.IsMobilePhone(phone) {
		return nil, invalid("phone", "must be a mobile number")
	}
	if !in.Type.Valid() {
		return nil, invalid("type", "unknown consultation type")
	}
	message := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(message) > maxConsultText {
		return nil, invalid("message", "too long")
	}

	c := &model.Consultation{
		ConsultationID: uuid.NewString(),
		Type:           in.Type,
		Name:           name,
		Phone:          phone,
		SchoolGrade:    strings.TrimSpace(in.SchoolGrade),
		CurrentScore:   strings.TrimSpace(in.CurrentScore),
		TargetUniv:     strings.TrimSpace(in.TargetUniv),
		Direction:      strings.TrimSpace(in.Direction),
		GradeLevel:     strings.TrimSpace(in.GradeLevel),
		Subject:        strings.TrimSpace(in.Subject),
		Message:        message,
		Status:         model.ConsultationPending,
	}
	if in.MarketingConsent {
		now := s.now()
		c.MarketingConsent = true
		c.MarketingConsentAt = &now
		c.MarketingConsentVersion = s.consentVersion
	}

	if err := s.repo.CreateConsultation(ctx, c); err != nil {
		return nil, err
	}

	s.notifier.ConsultationCreated(*c)
	return c, nil
}

// ListConsultations возвращает страницу заявок для администратора. Неизвестные фильтры игнорируются.
func (s *Service) ListConsultations(ctx context.Context, actor Actor, q ConsultationQuery) (model.Page[model.Consultation], error) {
	if !actor.IsAdmin() {
		return model.Page[model.Consultation]{}, ErrForbidden
	}
	f := model.ConsultationFilter{
		Query:   strings.TrimSpace(q.Query),
		Page:    pageOrFirst(q.Page),
		PerPage: consultationsPerPage,
	}
	if q.Type.Valid() {
		f.Type = q.Type
	}
	if q.Status.Valid() {
		f.Status = q.Status
	}

	items, total, err := s.repo.ListConsultations(ctx, f)
	if err != nil {
		return model.Page[model.Consultation]{}, err
	}
	return model.NewPage(items, total, f.Page, f.PerPage), nil
}

// UpdateConsultation меняет статус, заметку или сбрасывает запрос на перенос.
func (s *Service) UpdateConsultation(ctx context.Context, actor Actor, id string, in ConsultationUpdate) (*model.Consultation, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalid("status", "unknown status")
	}

	c, err := s.repo.UpdateConsultation(ctx, id, func(c *model.Consultation) error {
		if in.Status != nil {
			c.Status = *in.Status
		}
		if in.AdminMemo != nil {
			c.AdminMemo = strings.TrimSpace(*in.AdminMemo)
		}
		if in.ClearChangeRequest {
			c.ScheduleChangeRequest = ""
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConsultationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ScheduleConsultation назначает дату и время консультации и ставит в очередь уведомление заявителю.
func (s *Service) ScheduleConsultation(ctx context.Context, actor Actor, id, date, clock string) (*model.Consultation, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return nil, invalid("", "scheduledDate and scheduledTime are required")
	}

	c, err := s.repo.UpdateConsultation(ctx, id, func(c *model.Consultation) error {
		c.ScheduledDate = date
		c.ScheduledTime = clock
		c.ScheduleChangeRequest = ""
		c.ScheduleConfirmedAt = nil
		c.Status = model.ConsultationScheduled
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConsultationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.notifier.ScheduleConfirmed(*c)
	return c, nil
}
