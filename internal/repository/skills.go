package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/academy-store/internal/model"
)

// FeedbackFunc применяет оценку к заблокированным профилю и материалу и возвращает запись для сохранения.
type FeedbackFunc func(skill *model.UserSkill, material *model.Material) (model.FeedbackRecord, error)

// RevertFunc отменяет сохранённую оценку на заблокированных профиле и материале.
type RevertFunc func(skill *model.UserSkill, material *model.Material, rec model.FeedbackRecord) error

// lockSkill создаёт профиль при первом обращении и блокирует его строку до конца транзакции.
func lockSkill(ctx context.Context, tx pgx.Tx, userID int64) (*model.UserSkill, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_skills (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return nil, fmt.Errorf("ensure user skill: %w", err)
	}

	var (
		s   model.UserSkill
		raw []byte
	)
	err := tx.QueryRow(ctx,
		`SELECT user_id, overall_rating, total_attempts, total_correct, topic_skills, updated_at
		 FROM user_skills WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&s.UserID, &s.OverallRating, &s.TotalAttempts, &s.TotalCorrect, &raw, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock user skill: %w", err)
	}
	if err := decodeTopics(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeTopics(raw []byte, s *model.UserSkill) error {
	s.TopicSkills = map[string]model.TopicSkill{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.TopicSkills); err != nil {
		return fmt.Errorf("decode topic skills: %w", err)
	}
	return nil
}

func saveSkill(ctx context.Context, tx pgx.Tx, s *model.UserSkill) error {
	raw, err := json.Marshal(s.TopicSkills)
	if err != nil {
		return fmt.Errorf("encode topic skills: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE user_skills
		 SET overall_rating = $2, total_attempts = $3, total_correct = $4, topic_skills = $5, updated_at = $6
		 WHERE user_id = $1`,
		s.UserID, s.OverallRating, s.TotalAttempts, s.TotalCorrect, raw, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user skill: %w", err)
	}
	return nil
}

func lockMaterial(ctx context.Context, tx pgx.Tx, id string) (*model.Material, error) {
	m, err := scanMaterial(tx.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE material_id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMaterialNotFound
		}
		return nil, fmt.Errorf("lock material: %w", err)
	}
	return m, nil
}

// GetUserSkill возвращает профиль навыков; ErrUserNotFound, если профиль ещё не создан.
func (r *PostgresRepository) GetUserSkill(ctx context.Context, userID int64) (*model.UserSkill, error) {
	var (
		s   model.UserSkill
		raw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, overall_rating, total_attempts, total_correct, topic_skills, updated_at
		 FROM user_skills WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.OverallRating, &s.TotalAttempts, &s.TotalCorrect, &raw, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user skill: %w", err)
	}
	if err := decodeTopics(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyFeedback атомарно применяет оценку: профиль и материал блокируются, запись оценки
// вставляется по первичному ключу (user_id, material_id). Повторная оценка даёт ErrDuplicateFeedback.
func (r *PostgresRepository) ApplyFeedback(ctx context.Context, userID int64, materialID string, fn FeedbackFunc) (*model.FeedbackRecord, error) {
	var out model.FeedbackRecord
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		skill, err := lockSkill(ctx, tx, userID)
		if err != nil {
			return err
		}
		material, err := lockMaterial(ctx, tx, materialID)
		if err != nil {
			return err
		}

		rec, err := fn(skill, material)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO material_feedback (user_id, material_id, difficulty, topic, rating_before, rating_change,
				overall_change, material_rating_before, material_change, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			userID, materialID, string(rec.Difficulty), rec.Topic, rec.RatingBefore, rec.RatingChange,
			rec.OverallChange, rec.MaterialRatingBefore, rec.MaterialChange, rec.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateFeedback
			}
			return fmt.Errorf("insert feedback: %w", err)
		}

		if err := saveSkill(ctx, tx, skill); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE materials SET difficulty_rating = $2 WHERE material_id = $1`,
			materialID, material.DifficultyRating,
		); err != nil {
			return fmt.Errorf("update material rating: %w", err)
		}

		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RevertFeedback атомарно отменяет оценку и удаляет её запись. Если записи нет, возвращает ErrFeedbackNotFound.
func (r *PostgresRepository) RevertFeedback(ctx context.Context, userID int64, materialID string, fn RevertFunc) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		skill, err := lockSkill(ctx, tx, userID)
		if err != nil {
			return err
		}

		var (
			rec        model.FeedbackRecord
			difficulty string
		)
		err = tx.QueryRow(ctx,
			`DELETE FROM material_feedback WHERE user_id = $1 AND material_id = $2
			 RETURNING user_id, material_id, difficulty, topic, rating_before, rating_change, overall_change,
			           material_rating_before, material_change, created_at`,
			userID, materialID,
		).Scan(&rec.UserID, &rec.MaterialID, &difficulty, &rec.Topic, &rec.RatingBefore, &rec.RatingChange,
			&rec.OverallChange, &rec.MaterialRatingBefore, &rec.MaterialChange, &rec.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrFeedbackNotFound
			}
			return fmt.Errorf("delete feedback: %w", err)
		}
		rec.Difficulty = model.Difficulty(difficulty)

		material, err := lockMaterial(ctx, tx, materialID)
		if err != nil {
			return err
		}

		if err := fn(skill, material, rec); err != nil {
			return err
		}

		if err := saveSkill(ctx, tx, skill); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE materials SET difficulty_rating = $2 WHERE material_id = $1`,
			materialID, material.DifficultyRating,
		); err != nil {
			return fmt.Errorf("update material rating: %w", err)
		}
		return nil
	})
}

// UpdateUserSkill блокирует профиль, применяет fn и сохраняет результат.
// Использует ту же блокировку, что и обработка оценок, поэтому изменения не теряются.
func (r *PostgresRepository) UpdateUserSkill(ctx context.Context, userID int64, fn func(skill *model.UserSkill) error) (*model.UserSkill, error) {
	var out *model.UserSkill
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		skill, err := lockSkill(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(skill); err != nil {
			return err
		}
		if err := saveSkill(ctx, tx, skill); err != nil {
			return err
		}
		out = skill
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
