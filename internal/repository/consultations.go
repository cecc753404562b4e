package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/academy-store/internal/model"
)

const consultationColumns = `consultation_id, type, name, phone, marketing_consent, marketing_consent_at,
	marketing_consent_version, school_grade, current_score, target_univ, direction, grade_level, subject,
	message, status, scheduled_date, scheduled_time, schedule_change_request, schedule_confirmed_at,
	admin_memo, created_at, updated_at`

func scanConsultation(row pgx.Row) (*model.Consultation, error) {
	var (
		c           model.Consultation
		typ, status string
	)
	err := row.Scan(&c.ConsultationID, &typ, &c.Name, &c.Phone, &c.MarketingConsent, &c.MarketingConsentAt,
		&c.MarketingConsentVersion, &c.SchoolGrade, &c.CurrentScore, &c.TargetUniv, &c.Direction, &c.GradeLevel,
		&c.Subject, &c.Message, &status, &c.ScheduledDate, &c.ScheduledTime, &c.ScheduleChangeRequest,
		&c.ScheduleConfirmedAt, &c.AdminMemo, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Type = model.ConsultationType(typ)
	c.Status = model.ConsultationStatus(status)
	return &c, nil
}

// CreateConsultation сохраняет новую заявку.
func (r *PostgresRepository) CreateConsultation(ctx context.Context, c *model.Consultation) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO consultations (consultation_id, type, name, phone, marketing_consent, marketing_consent_at,
			marketing_consent_version, school_grade, current_score, target_univ, direction, grade_level, subject,
			message, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING created_at, updated_at`,
		c.ConsultationID, string(c.Type), c.Name, c.Phone, c.MarketingConsent, c.MarketingConsentAt,
		c.MarketingConsentVersion, c.SchoolGrade, c.CurrentScore, c.TargetUniv, c.Direction, c.GradeLevel,
		c.Subject, c.Message, string(c.Status),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

// GetConsultation возвращает заявку по идентификатору.
func (r *PostgresRepository) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	c, err := scanConsultation(r.pool.QueryRow(ctx,
		`SELECT `+consultationColumns+` FROM consultations WHERE consultation_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return c, nil
}

// ListConsultations возвращает страницу заявок по фильтру, новые первыми.
func (r *PostgresRepository) ListConsultations(ctx context.Context, f model.ConsultationFilter) ([]model.Consultation, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(name ILIKE $%[1]d OR phone ILIKE $%[1]d OR message ILIKE $%[1]d)", "%"+q+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM consultations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count consultations: %w", err)
	}

	args = append(args, f.PerPage, offsetFor(f.Page, f.PerPage))
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM consultations WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			consultationColumns, cond, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select consultations: %w", err)
	}
	defer rows.Close()

	var res []model.Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan consultation: %w", err)
		}
		res = append(res, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return res, total, nil
}

// UpdateConsultation блокирует заявку, применяет к ней fn и сохраняет изменяемые администратором поля.
func (r *PostgresRepository) UpdateConsultation(ctx context.Context, id string, fn func(c *model.Consultation) error) (*model.Consultation, error) {
	var updated *model.Consultation
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanConsultation(tx.QueryRow(ctx,
			`SELECT `+consultationColumns+` FROM consultations WHERE consultation_id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrConsultationNotFound
			}
			return fmt.Errorf("lock consultation: %w", err)
		}

		if err := fn(c); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx,
			`UPDATE consultations
			 SET status = $2, admin_memo = $3, scheduled_date = $4, scheduled_time = $5,
			     schedule_change_request = $6, schedule_confirmed_at = $7, updated_at = now()
			 WHERE consultation_id = $1
			 RETURNING updated_at`,
			id, string(c.Status), c.AdminMemo, c.ScheduledDate, c.ScheduledTime,
			c.ScheduleChangeRequest, c.ScheduleConfirmedAt,
		).Scan(&c.UpdatedAt); err != nil {
			return fmt.Errorf("update consultation: %w", err)
		}

		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConsentedPhones возвращает подмножество телефонов, владельцы которых согласились на рассылку.
// Согласие берётся из профиля пользователя или из неотменённой заявки.
func (r *PostgresRepository) ConsentedPhones(ctx context.Context, phones []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone FROM users WHERE phone = ANY($1) AND marketing_consent_at IS NOT NULL
		 UNION
		 SELECT phone FROM consultations
		 WHERE phone = ANY($1) AND marketing_consent AND status <> 'cancelled'`,
		phones,
	)
	if err != nil {
		return nil, fmt.Errorf("select consented phones: %w", err)
	}
	defer rows.Close()

	res := make(map[string]bool, len(phones))
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan phone: %w", err)
		}
		res[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// RemoveConsent отзывает согласие на рассылку у пользователей и заявок с указанными телефонами.
func (r *PostgresRepository) RemoveConsent(ctx context.Context, phones []string) (int64, error) {
	var changed int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		changed = 0

		tag, err := tx.Exec(ctx,
			`UPDATE users SET marketing_consent_at = NULL
			 WHERE phone = ANY($1) AND marketing_consent_at IS NOT NULL`, phones)
		if err != nil {
			return fmt.Errorf("remove user consent: %w", err)
		}
		changed += tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`UPDATE consultations
			 SET marketing_consent = FALSE, marketing_consent_at = NULL, updated_at = now()
			 WHERE phone = ANY($1) AND marketing_consent`, phones)
		if err != nil {
			return fmt.Errorf("remove consultation consent: %w", err)
		}
		changed += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
