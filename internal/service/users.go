package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/rating"
	"github.com/mmeshcher/academy-store/internal/repository"
	"github.com/mmeshcher/academy-store/internal/validation"
)

const (
	minPasswordLen = 8
	usersPerPage   = 20
)

// RegisterInput описывает регистрацию пользователя.
type RegisterInput struct {
	Email            string
	Username         string
	Password         string
	Phone            string
	MarketingConsent bool
}

// RatingPatch описывает правку рейтинга администратором. Nil в Topics удаляет тему.
type RatingPatch struct {
	OverallRating *int
	Topics        map[string]*int
}

// SkillView описывает рейтинг пользователя для просмотра.
type SkillView struct {
	model.UserSkill
	Level rating.Level `json:"level"`
}

// RegisterUser регистрирует нового пользователя с ролью student.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, invalid("email", "invalid address")
	}
	username := strings.TrimSpace(in.Username)
	if n := utf8.RuneCountInString(username); n == 0 || n > 30 {
		return nil, invalid("username", "must be 1 to 30 characters")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, invalid("password", "must be at least 8 characters")
	}

	phone := validation.Digits(in.Phone)
	if phone != "" && !validation.IsMobilePhone(phone) {
		return nil, invalid("phone", "must be a mobile number")
	}
	if in.MarketingConsent && phone == "" {
		return nil, invalid("phone", "required for marketing consent")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleStudent,
		Phone:        phone,
	}
	if in.MarketingConsent {
		now := s.now()
		u.MarketingConsentAt = &now
	}

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	u.ID = id
	return u, nil
}

// AuthenticateUser проверяет e-mail и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ListUsers возвращает страницу пользователей для администратора.
func (s *Service) ListUsers(ctx context.Context, actor Actor, q string, page int) (model.Page[model.User], error) {
	if !actor.IsAdmin() {
		return model.Page[model.User]{}, ErrForbidden
	}
	page = pageOrFirst(page)
	items, total, err := s.repo.ListUsers(ctx, strings.TrimSpace(q), page, usersPerPage)
	if err != nil {
		return model.Page[model.User]{}, err
	}
	return model.NewPage(items, total, page, usersPerPage), nil
}

// UpdateUserRole меняет роль пользователя. Администратор не может снять роль с самого себя.
func (s *Service) UpdateUserRole(ctx context.Context, actor Actor, userID int64, role model.Role) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if !role.Valid() {
		return invalid("role", "must be student, teacher or admin")
	}
	if userID == actor.UserID && role != model.RoleAdmin {
		return invalid("role", "cannot demote yourself")
	}
	if err := s.repo.UpdateUserRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetUserRating возвращает рейтинг пользователя; до первой оценки возвращаются значения по умолчанию.
func (s *Service) GetUserRating(ctx context.Context, actor Actor, userID int64) (*SkillView, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	skill, err := s.skillOrDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SkillView{UserSkill: *skill, Level: rating.LevelFor(skill.OverallRating)}, nil
}

// UpdateUserRating переписывает общий рейтинг и рейтинги тем. Значения ограничиваются допустимым диапазоном.
// Правка выполняется под той же блокировкой профиля, что и обработка оценок.
func (s *Service) UpdateUserRating(ctx context.Context, actor Actor, userID int64, patch RatingPatch) (*SkillView, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	for topic := range patch.Topics {
		if strings.TrimSpace(topic) == "" {
			return nil, invalid("topics", "empty topic name")
		}
	}
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	skill, err := s.repo.UpdateUserSkill(ctx, userID, func(skill *model.UserSkill) error {
		if patch.OverallRating != nil {
			skill.OverallRating = rating.Clamp(*patch.OverallRating)
		}
		if skill.TopicSkills == nil {
			skill.TopicSkills = map[string]model.TopicSkill{}
		}
		for topic, v := range patch.Topics {
			topic = strings.TrimSpace(topic)
			if v == nil {
				delete(skill.TopicSkills, topic)
				continue
			}
			ts := skill.TopicSkills[topic]
			ts.Rating = rating.Clamp(*v)
			skill.TopicSkills[topic] = ts
		}
		skill.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRecommendations(ctx, userID)
	return &SkillView{UserSkill: *skill, Level: rating.LevelFor(skill.OverallRating)}, nil
}

func (s *Service) userExists(ctx context.Context, id int64) error {
	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
