package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/academy-store/internal/model"
)

// excludeOwned отсекает материалы, оплаченные или уже оценённые пользователем $1.
const excludeOwned = `
	AND NOT EXISTS (SELECT 1 FROM orders o
	                WHERE o.user_id = $1 AND o.material_id = materials.material_id AND o.status = 'paid')
	AND NOT EXISTS (SELECT 1 FROM material_feedback f
	                WHERE f.user_id = $1 AND f.material_id = materials.material_id)`

// RecommendCandidates возвращает активные материалы для учеников с рейтингом сложности в [lo, hi],
// которые пользователь ещё не купил и не оценил.
func (r *PostgresRepository) RecommendCandidates(ctx context.Context, userID int64, lo, hi, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials
		 WHERE is_active AND target_audience IN ('student', 'all')
		   AND difficulty_rating BETWEEN $2 AND $3`+excludeOwned+`
		 ORDER BY difficulty_rating
		 LIMIT $4`,
		userID, lo, hi, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return collectMaterials(rows)
}

// FallbackMaterials возвращает самые лёгкие материалы для учеников, которые пользователь ещё не купил и не оценил.
func (r *PostgresRepository) FallbackMaterials(ctx context.Context, userID int64, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials
		 WHERE is_active AND target_audience IN ('student', 'all')`+excludeOwned+`
		 ORDER BY difficulty_rating, created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select fallback materials: %w", err)
	}
	return collectMaterials(rows)
}

// PopularMaterials возвращает самые скачиваемые материалы для учеников.
func (r *PostgresRepository) PopularMaterials(ctx context.Context, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials
		 WHERE is_active AND target_audience IN ('student', 'all')
		 ORDER BY download_count DESC, created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select popular materials: %w", err)
	}
	return collectMaterials(rows)
}

// TeacherRecommendations ранжирует материалы для учителей по числу покупок другими учителями
// начиная с since, затем по скачиваниям и новизне. Собственные покупки исключаются.
func (r *PostgresRepository) TeacherRecommendations(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`WITH peer AS (
		     SELECT o.material_id, count(*) AS peer_orders
		     FROM orders o JOIN users u ON u.id = o.user_id
		     WHERE o.status = 'paid' AND u.role = 'teacher' AND o.user_id <> $1 AND o.paid_at >= $2
		     GROUP BY o.material_id
		 )
		 SELECT `+materialColumns+` FROM materials LEFT JOIN peer USING (material_id)
		 WHERE is_active AND target_audience IN ('teacher', 'all')
		   AND NOT EXISTS (SELECT 1 FROM orders o
		                   WHERE o.user_id = $1 AND o.material_id = materials.material_id AND o.status = 'paid')
		 ORDER BY COALESCE(peer_orders, 0) DESC, download_count DESC, created_at DESC
		 LIMIT $3`,
		userID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select teacher recommendations: %w", err)
	}
	return collectMaterials(rows)
}

// SimilarUserMaterials возвращает материалы, чаще всего покупаемые пользователями с общим рейтингом в [lo, hi].
func (r *PostgresRepository) SimilarUserMaterials(ctx context.Context, userID int64, lo, hi, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`WITH similar_orders AS (
		     SELECT o.material_id, count(DISTINCT o.user_id) AS buyers
		     FROM orders o JOIN user_skills s ON s.user_id = o.user_id
		     WHERE o.status = 'paid' AND o.user_id <> $1 AND s.overall_rating BETWEEN $2 AND $3
		     GROUP BY o.material_id
		 )
		 SELECT `+materialColumns+` FROM materials JOIN similar_orders USING (material_id)
		 WHERE is_active`+excludeOwned+`
		 ORDER BY buyers DESC, download_count DESC
		 LIMIT $4`,
		userID, lo, hi, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select similar user materials: %w", err)
	}
	return collectMaterials(rows)
}

// AlsoBought возвращает материалы, купленные вместе с materialID. Покупки excludeUserID исключаются из выдачи.
func (r *PostgresRepository) AlsoBought(ctx context.Context, materialID string, excludeUserID int64, limit int) ([]model.Material, error) {
	rows, err := r.pool.Query(ctx,
		`WITH buyers AS (
		     SELECT DISTINCT user_id FROM orders
		     WHERE material_id = $2 AND status = 'paid' AND user_id IS NOT NULL
		 ), co AS (
		     SELECT o.material_id, count(DISTINCT o.user_id) AS together
		     FROM orders o JOIN buyers b ON b.user_id = o.user_id
		     WHERE o.status = 'paid' AND o.material_id <> $2
		     GROUP BY o.material_id
		 )
		 SELECT `+materialColumns+` FROM materials JOIN co USING (material_id)
		 WHERE is_active
		   AND NOT EXISTS (SELECT 1 FROM orders o
		                   WHERE o.user_id = $1 AND o.material_id = materials.material_id AND o.status = 'paid')
		 ORDER BY together DESC, download_count DESC
		 LIMIT $3`,
		excludeUserID, materialID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select also bought: %w", err)
	}
	return collectMaterials(rows)
}
