package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/academy-store/internal/model"
)

const orderColumns = `order_id, kind, user_id, material_id, material_title, product_key, file_types, amount,
	status, payment_key, payment_method, payment_note, paid_at, has_downloaded, downloaded_at,
	downloaded_file_types, applicant_name, phone, cafe_nickname, process_status, created_at, cancelled_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o               model.Order
		kind, status    string
		userID          *int64
		materialID      *string
		productKey      *string
		fileTypes       []string
		downloadedTypes []string
	)
	err := row.Scan(&o.OrderID, &kind, &userID, &materialID, &o.MaterialTitle, &productKey, &fileTypes, &o.Amount,
		&status, &o.PaymentKey, &o.PaymentMethod, &o.PaymentNote, &o.PaidAt, &o.HasDownloaded, &o.DownloadedAt,
		&downloadedTypes, &o.ApplicantName, &o.Phone, &o.CafeNickname, &o.ProcessStatus, &o.CreatedAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	o.Kind = model.OrderKind(kind)
	o.Status = model.OrderStatus(status)
	if userID != nil {
		o.UserID = *userID
	}
	if materialID != nil {
		o.MaterialID = *materialID
	}
	if productKey != nil {
		o.ProductKey = *productKey
	}
	o.FileTypes = toFileTypes(fileTypes)
	o.DownloadedFileTypes = toFileTypes(downloadedTypes)
	return &o, nil
}

func toFileTypes(in []string) []model.FileType {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.FileType, 0, len(in))
	for _, s := range in {
		out = append(out, model.FileType(s))
	}
	return out
}

func fromFileTypes(in []model.FileType) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		out = append(out, string(f))
	}
	return out
}

func nullable[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func insertOrder(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, o *model.Order) error {
	return q.QueryRow(ctx,
		`INSERT INTO orders (order_id, kind, user_id, material_id, material_title, product_key, file_types, amount,
			status, payment_method, payment_note, applicant_name, phone, cafe_nickname, process_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING created_at`,
		o.OrderID, string(o.Kind), nullable(o.UserID), nullable(o.MaterialID), o.MaterialTitle, nullable(o.ProductKey),
		fromFileTypes(o.FileTypes), o.Amount, string(o.Status), o.PaymentMethod, o.PaymentNote,
		o.ApplicantName, o.Phone, o.CafeNickname, o.ProcessStatus,
	).Scan(&o.CreatedAt)
}

// CreateOrder сохраняет новый заказ.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := insertOrder(ctx, r.pool, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// ReplacePendingOrder создаёт заказ на материал, удаляя прежние неоплаченные заказы того же пользователя.
// Если материал уже оплачен, возвращает ErrAlreadyPurchased.
func (r *PostgresRepository) ReplacePendingOrder(ctx context.Context, o *model.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		// Блокируем строку пользователя, чтобы параллельные оформления не создали два заказа.
		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, o.UserID).Scan(&dummy); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		var paid bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND material_id = $2 AND status = 'paid')`,
			o.UserID, o.MaterialID,
		).Scan(&paid); err != nil {
			return fmt.Errorf("check paid order: %w", err)
		}
		if paid {
			return ErrAlreadyPurchased
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM orders WHERE user_id = $1 AND material_id = $2 AND status = 'pending'`,
			o.UserID, o.MaterialID,
		); err != nil {
			return fmt.Errorf("delete pending orders: %w", err)
		}

		if err := insertOrder(ctx, tx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// FindPaidOrder возвращает оплаченный заказ пользователя на материал, включающий категорию файла.
// Пустая категория означает любой оплаченный заказ на материал.
func (r *PostgresRepository) FindPaidOrder(ctx context.Context, userID int64, materialID string, ft model.FileType) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 AND material_id = $2 AND status = 'paid'
		   AND ($3 = '' OR $3 = ANY(file_types))
		 ORDER BY paid_at DESC NULLS LAST
		 LIMIT 1`,
		userID, materialID, string(ft),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find paid order: %w", err)
	}
	return o, nil
}

// MarkOrderPaid переводит заказ из pending в paid. Если статус уже другой, возвращает ErrNotMatched.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, id string, paymentKey *string, method string, paidAt time.Time) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET status = 'paid', payment_key = COALESCE($2, payment_key), payment_method = $3, paid_at = $4
			 WHERE order_id = $1 AND status = 'pending'`,
			id, paymentKey, method, paidAt,
		)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotMatched
		}
		return nil
	})
}

// CancelPaidOrder переводит заказ из paid в cancelled, очищает paidAt и ставит отметку отмены at.
// Если статус уже другой, возвращает ErrNotMatched.
func (r *PostgresRepository) CancelPaidOrder(ctx context.Context, id string, at time.Time) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders SET status = 'cancelled', paid_at = NULL, cancelled_at = $2
			 WHERE order_id = $1 AND status = 'paid'`,
			id, at,
		)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotMatched
		}
		return nil
	})
}

// RecordDownload отмечает скачивание файла по оплаченному заказу. Если заказ уже не оплачен, возвращает ErrNotMatched.
func (r *PostgresRepository) RecordDownload(ctx context.Context, id string, ft model.FileType, at time.Time) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET has_downloaded = TRUE,
			     downloaded_at = COALESCE(downloaded_at, $3),
			     downloaded_file_types = CASE
			         WHEN $2 = ANY(downloaded_file_types) THEN downloaded_file_types
			         ELSE array_append(downloaded_file_types, $2)
			     END
			 WHERE order_id = $1 AND status = 'paid'`,
			id, string(ft), at,
		)
		if err != nil {
			return fmt.Errorf("record download: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotMatched
		}
		return nil
	})
}

// SetProcessStatus меняет статус обработки заказа повышения статуса.
func (r *PostgresRepository) SetProcessStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET process_status = $2 WHERE order_id = $1 AND kind = 'upgrade'`, id, status)
	if err != nil {
		return fmt.Errorf("set process status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrders возвращает страницу заказов по фильтру, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, f.PerPage, offsetFor(f.Page, f.PerPage))
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			orderColumns, cond, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return orders, total, nil
}
