package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/rating"
	"github.com/mmeshcher/academy-store/internal/repository"
)

// FeedbackResult описывает результат применения оценки.
type FeedbackResult struct {
	Topic         string       `json:"topic"`
	NewRating     int          `json:"newRating"`
	RatingChange  int          `json:"ratingChange"`
	OverallRating int          `json:"overallRating"`
	Level         rating.Level `json:"level"`
}

// SubmitFeedback применяет оценку сложности материала к рейтингу пользователя.
// Платный материал можно оценить только после оплаты; повторная оценка даёт ErrDuplicateFeedback.
func (s *Service) SubmitFeedback(ctx context.Context, actor Actor, materialID string, d model.Difficulty) (*FeedbackResult, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}
	materialID = strings.TrimSpace(materialID)
	if materialID == "" {
		return nil, invalid("materialId", "required")
	}
	if !d.Valid() {
		return nil, invalid("difficulty", "must be easy, normal or hard")
	}

	m, err := s.activeMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if !m.IsFree {
		if _, err := s.repo.FindPaidOrder(ctx, actor.UserID, m.MaterialID, ""); err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
	}

	var res FeedbackResult
	now := s.now()
	_, err = s.repo.ApplyFeedback(ctx, actor.UserID, m.MaterialID, func(skill *model.UserSkill, mat *model.Material) (model.FeedbackRecord, error) {
		out := rating.Apply(skill, *mat, d, now)
		mat.DifficultyRating = out.NewMaterialRating
		res = FeedbackResult{
			Topic:         out.Record.Topic,
			NewRating:     out.NewRating,
			RatingChange:  out.Record.RatingChange,
			OverallRating: skill.OverallRating,
			Level:         rating.LevelFor(skill.OverallRating),
		}
		return out.Record, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateFeedback):
			s.metrics.FeedbackProcessed.WithLabelValues("submit", "duplicate").Inc()
			return nil, ErrDuplicateFeedback
		case errors.Is(err, repository.ErrMaterialNotFound):
			return nil, ErrNotFound
		}
		s.metrics.FeedbackProcessed.WithLabelValues("submit", "error").Inc()
		return nil, err
	}

	s.metrics.FeedbackProcessed.WithLabelValues("submit", "ok").Inc()
	s.invalidateRecommendations(ctx, actor.UserID)
	return &res, nil
}

// UndoFeedback отменяет оценку, вычитая сохранённые изменения рейтингов.
func (s *Service) UndoFeedback(ctx context.Context, actor Actor, materialID string) error {
	if !actor.Authenticated() {
		return ErrUnauthorized
	}
	materialID = strings.TrimSpace(materialID)
	if materialID == "" {
		return invalid("materialId", "required")
	}

	now := s.now()
	err := s.repo.RevertFeedback(ctx, actor.UserID, materialID, func(skill *model.UserSkill, mat *model.Material, rec model.FeedbackRecord) error {
		mat.DifficultyRating = rating.Revert(skill, mat.DifficultyRating, rec, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrFeedbackNotFound) || errors.Is(err, repository.ErrMaterialNotFound) {
			s.metrics.FeedbackProcessed.WithLabelValues("undo", "not_found").Inc()
			return ErrNotFound
		}
		s.metrics.FeedbackProcessed.WithLabelValues("undo", "error").Inc()
		return err
	}

	s.metrics.FeedbackProcessed.WithLabelValues("undo", "ok").Inc()
	s.invalidateRecommendations(ctx, actor.UserID)
	return nil
}
