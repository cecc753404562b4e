package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/rating"
	"github.com/mmeshcher/academy-store/internal/repository"
)

const (
	defaultRecommendLimit = 6
	maxRecommendLimit     = 50
	candidatePoolSize     = 200
	teacherPeerWindow     = 30 * 24 * time.Hour
	popularCacheKey       = "recommend:popular"
)

// RecommendMode выбирает алгоритм рекомендаций.
type RecommendMode string

const (
	ModeStudent RecommendMode = "student"
	ModeTeacher RecommendMode = "teacher"
)

// Recommendations описывает выдачу рекомендаций.
type Recommendations struct {
	Mode         RecommendMode    `json:"mode"`
	Personalized bool             `json:"personalized"`
	Materials    []model.Material `json:"materials"`
}

// cachedList хранит в кэше максимальную выдачу; запросы с меньшим limit берут её префикс.
type cachedList struct {
	Personalized bool             `json:"personalized"`
	Materials    []model.Material `json:"materials"`
}

func userCacheKey(userID int64) string {
	return fmt.Sprintf("recommend:user:%d", userID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecommendLimit
	}
	return min(limit, maxRecommendLimit)
}

// Recommend возвращает рекомендации. Пустой mode выбирается по роли пользователя.
// Анонимный ученик получает самые популярные материалы.
func (s *Service) Recommend(ctx context.Context, actor Actor, mode RecommendMode, limit int) (*Recommendations, error) {
	limit = clampLimit(limit)
	if mode == "" {
		mode = ModeStudent
		if actor.Authenticated() && actor.Role == model.RoleTeacher {
			mode = ModeTeacher
		}
	}

	switch mode {
	case ModeTeacher:
		items, err := s.repo.TeacherRecommendations(ctx, actor.UserID, s.now().Add(-teacherPeerWindow), limit)
		if err != nil {
			return nil, err
		}
		return &Recommendations{Mode: mode, Personalized: actor.Authenticated(), Materials: nonNil(items)}, nil
	case ModeStudent:
	default:
		return nil, invalid("mode", "must be student or teacher")
	}

	key := popularCacheKey
	load := s.popular
	if actor.Authenticated() {
		key = userCacheKey(actor.UserID)
		load = func(ctx context.Context) (cachedList, error) { return s.forStudent(ctx, actor.UserID) }
	}

	list, err := s.cached(ctx, key, load)
	if err != nil {
		return nil, err
	}
	items := list.Materials
	if len(items) > limit {
		items = items[:limit]
	}
	return &Recommendations{Mode: mode, Personalized: list.Personalized, Materials: nonNil(items)}, nil
}

func (s *Service) popular(ctx context.Context) (cachedList, error) {
	items, err := s.repo.PopularMaterials(ctx, maxRecommendLimit)
	if err != nil {
		return cachedList{}, err
	}
	return cachedList{Materials: items}, nil
}

// forStudent ранжирует материалы в окне вокруг общего рейтинга; если окно пусто,
// выдаёт самые лёгкие из ещё не пройденных материалов.
func (s *Service) forStudent(ctx context.Context, userID int64) (cachedList, error) {
	skill, err := s.skillOrDefault(ctx, userID)
	if err != nil {
		return cachedList{}, err
	}

	lo, hi := rating.WindowBounds(skill)
	candidates, err := s.repo.RecommendCandidates(ctx, userID, lo, hi, candidatePoolSize)
	if err != nil {
		return cachedList{}, err
	}
	if len(candidates) == 0 {
		fallback, err := s.repo.FallbackMaterials(ctx, userID, maxRecommendLimit)
		if err != nil {
			return cachedList{}, err
		}
		return cachedList{Materials: fallback}, nil
	}
	return cachedList{Personalized: true, Materials: rating.RankForStudent(skill, candidates, maxRecommendLimit)}, nil
}

// RecommendSimilar возвращает материалы, популярные у пользователей близкого уровня.
func (s *Service) RecommendSimilar(ctx context.Context, actor Actor, limit int) ([]model.Material, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}
	skill, err := s.skillOrDefault(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.SimilarUserMaterials(ctx, actor.UserID,
		skill.OverallRating-rating.SimilarWindow, skill.OverallRating+rating.SimilarWindow, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

// AlsoBought возвращает материалы, которые покупали вместе с указанным.
func (s *Service) AlsoBought(ctx context.Context, actor Actor, materialID string, limit int) ([]model.Material, error) {
	if _, err := s.activeMaterial(ctx, materialID); err != nil {
		return nil, err
	}
	items, err := s.repo.AlsoBought(ctx, materialID, actor.UserID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (s *Service) skillOrDefault(ctx context.Context, userID int64) (*model.UserSkill, error) {
	skill, err := s.repo.GetUserSkill(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return rating.NewSkill(userID), nil
		}
		return nil, err
	}
	return skill, nil
}

func (s *Service) cached(ctx context.Context, key string, load func(ctx context.Context) (cachedList, error)) (cachedList, error) {
	if s.cache == nil {
		return load(ctx)
	}

	var list cachedList
	ok, err := s.cache.GetJSON(ctx, key, &list)
	switch {
	case err != nil:
		s.metrics.RecommendCacheHits.WithLabelValues("error").Inc()
		s.logger.Warn("recommendation cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		s.metrics.RecommendCacheHits.WithLabelValues("hit").Inc()
		return list, nil
	default:
		s.metrics.RecommendCacheHits.WithLabelValues("miss").Inc()
	}

	list, err = load(ctx)
	if err != nil {
		return cachedList{}, err
	}
	if err := s.cache.SetJSON(ctx, key, list, s.cacheTTL); err != nil {
		s.logger.Warn("recommendation cache write failed", zap.String("key", key), zap.Error(err))
	}
	return list, nil
}

// invalidateRecommendations сбрасывает персональную выдачу пользователя после изменения его покупок или рейтинга.
func (s *Service) invalidateRecommendations(ctx context.Context, userID int64) {
	if s.cache == nil || userID == 0 {
		return
	}
	if err := s.cache.Delete(ctx, userCacheKey(userID)); err != nil {
		s.logger.Warn("recommendation cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func nonNil(items []model.Material) []model.Material {
	if items == nil {
		return []model.Material{}
	}
	return items
}
