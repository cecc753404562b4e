package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/rating"
	"github.com/mmeshcher/academy-store/internal/repository"
)

const materialsPerPage = 20

// MaterialQuery задаёт выборку каталога.
type MaterialQuery struct {
	Subject string
	Topic   string
	Query   string
	Sort    model.MaterialSort
	Page    int
}

// MaterialInput описывает новый материал каталога.
type MaterialInput struct {
	MaterialID       string
	Type             string
	Subject          string
	Topic            string
	SchoolName       string
	Year             int
	GradeNumber      int
	Difficulty       int
	DifficultyRating int
	TargetAudience   model.Audience
	IsFree           bool
	PriceProblem     int64
	PriceEtc         int64
	ProblemFile      string
	EtcFile          string
}

// audiencesFor возвращает аудитории материалов, видимые пользователю.
func audiencesFor(actor Actor) []model.Audience {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.Authenticated() && actor.Role == model.RoleTeacher:
		return []model.Audience{model.AudienceTeacher, model.AudienceAll}
	}
	return []model.Audience{model.AudienceStudent, model.AudienceAll}
}

// ListMaterials возвращает страницу активных материалов, доступных аудитории пользователя.
func (s *Service) ListMaterials(ctx context.Context, actor Actor, q MaterialQuery) (model.Page[model.Material], error) {
	switch q.Sort {
	case "", model.SortLatest, model.SortPopular, model.SortDiffAsc, model.SortDiffDesc:
	default:
		return model.Page[model.Material]{}, invalid("sort", "unknown sort order")
	}

	f := model.MaterialFilter{
		Subject:   strings.TrimSpace(q.Subject),
		Topic:     strings.TrimSpace(q.Topic),
		Audiences: audiencesFor(actor),
		Query:     q.Query,
		Sort:      q.Sort,
		Page:      pageOrFirst(q.Page),
		PerPage:   materialsPerPage,
	}
	items, total, err := s.repo.ListMaterials(ctx, f)
	if err != nil {
		return model.Page[model.Material]{}, err
	}
	return model.NewPage(items, total, f.Page, f.PerPage), nil
}

// GetMaterial возвращает активный материал.
func (s *Service) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	return s.activeMaterial(ctx, id)
}

// CreateMaterial добавляет материал в каталог. Рейтинг сложности по умолчанию выводится из уровня сложности.
func (s *Service) CreateMaterial(ctx context.Context, actor Actor, in MaterialInput) (*model.Material, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	m := &model.Material{
		MaterialID:     strings.TrimSpace(in.MaterialID),
		Type:           strings.TrimSpace(in.Type),
		Subject:        strings.TrimSpace(in.Subject),
		Topic:          strings.TrimSpace(in.Topic),
		SchoolName:     strings.TrimSpace(in.SchoolName),
		Year:           in.Year,
		GradeNumber:    in.GradeNumber,
		Difficulty:     in.Difficulty,
		TargetAudience: in.TargetAudience,
		IsFree:         in.IsFree,
		PriceProblem:   in.PriceProblem,
		PriceEtc:       in.PriceEtc,
		ProblemFile:    strings.TrimSpace(in.ProblemFile),
		EtcFile:        strings.TrimSpace(in.EtcFile),
		IsActive:       true,
	}

	if m.Type == "" || m.Subject == "" {
		return nil, invalid("", "type and subject are required")
	}
	if m.Difficulty == 0 {
		m.Difficulty = 3
	}
	if m.Difficulty < 1 || m.Difficulty > 5 {
		return nil, invalid("difficulty", "must be between 1 and 5")
	}
	if m.TargetAudience == "" {
		m.TargetAudience = model.AudienceStudent
	}
	switch m.TargetAudience {
	case model.AudienceStudent, model.AudienceTeacher, model.AudienceAll:
	default:
		return nil, invalid("targetAudience", "must be student, teacher or all")
	}
	if m.PriceProblem < 0 || m.PriceEtc < 0 {
		return nil, invalid("price", "must not be negative")
	}
	if !m.IsFree && m.PriceProblem == 0 && m.PriceEtc == 0 {
		return nil, invalid("price", "paid material needs a price")
	}

	m.DifficultyRating = rating.DefaultMaterialRating(m.Difficulty)
	if in.DifficultyRating != 0 {
		m.DifficultyRating = rating.Clamp(in.DifficultyRating)
	}
	if m.MaterialID == "" {
		m.MaterialID = uuid.NewString()
	}

	if err := s.repo.CreateMaterial(ctx, m); err != nil {
		if errors.Is(err, repository.ErrMaterialExists) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) activeMaterial(ctx context.Context, id string) (*model.Material, error) {
	m, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMaterialNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !m.IsActive {
		return nil, ErrNotFound
	}
	return m, nil
}
