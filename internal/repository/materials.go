package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/academy-store/internal/model"
)

const materialColumns = `material_id, type, subject, topic, school_name, year, grade_number, difficulty,
	difficulty_rating, target_audience, is_free, price_problem, price_etc, problem_file, etc_file,
	download_count, is_active, created_at`

func scanMaterial(row pgx.Row) (*model.Material, error) {
	var (
		m        model.Material
		audience string
	)
	err := row.Scan(&m.MaterialID, &m.Type, &m.Subject, &m.Topic, &m.SchoolName, &m.Year, &m.GradeNumber,
		&m.Difficulty, &m.DifficultyRating, &audience, &m.IsFree, &m.PriceProblem, &m.PriceEtc,
		&m.ProblemFile, &m.EtcFile, &m.DownloadCount, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.TargetAudience = model.Audience(audience)
	return &m, nil
}

func collectMaterials(rows pgx.Rows) ([]model.Material, error) {
	defer rows.Close()

	var res []model.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		res = append(res, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func materialOrder(sort model.MaterialSort) string {
	switch sort {
	case model.SortPopular:
		return "download_count DESC, created_at DESC"
	case model.SortDiffAsc:
		return "difficulty_rating, created_at DESC"
	case model.SortDiffDesc:
		return "difficulty_rating DESC, created_at DESC"
	}
	return "created_at DESC"
}

// CreateMaterial сохраняет новый материал каталога.
func (r *PostgresRepository) CreateMaterial(ctx context.Context, m *model.Material) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO materials (material_id, type, subject, topic, school_name, year, grade_number, difficulty,
			difficulty_rating, target_audience, is_free, price_problem, price_etc, problem_file, etc_file, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING created_at`,
		m.MaterialID, m.Type, m.Subject, m.Topic, m.SchoolName, m.Year, m.GradeNumber, m.Difficulty,
		m.DifficultyRating, string(m.TargetAudience), m.IsFree, m.PriceProblem, m.PriceEtc,
		m.ProblemFile, m.EtcFile, m.IsActive,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrMaterialExists, m.MaterialID)
		}
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// GetMaterial возвращает материал по идентификатору, включая неактивные.
func (r *PostgresRepository) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	m, err := scanMaterial(r.pool.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE material_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMaterialNotFound
		}
		return nil, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

// ListMaterials возвращает страницу активных материалов по фильтру.
func (r *PostgresRepository) ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, int64, error) {
	where := []string{"is_active"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if f.Topic != "" {
		add("topic = $%d", f.Topic)
	}
	if len(f.Audiences) > 0 {
		aud := make([]string, 0, len(f.Audiences))
		for _, a := range f.Audiences {
			aud = append(aud, string(a))
		}
		add("target_audience = ANY($%d)", aud)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(school_name ILIKE $%[1]d OR subject ILIKE $%[1]d OR topic ILIKE $%[1]d)", "%"+q+"%")
	}

	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM materials WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count materials: %w", err)
	}

	args = append(args, f.PerPage, offsetFor(f.Page, f.PerPage))
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM materials WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
			materialColumns, cond, materialOrder(f.Sort), len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select materials: %w", err)
	}

	items, err := collectMaterials(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// IncrementDownloadCount увеличивает счётчик скачиваний материала.
func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE materials SET download_count = download_count + 1 WHERE material_id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	return nil
}
