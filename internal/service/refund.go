package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/repository"
)

const (
	maxCancelReason   = 80
	userRefundReason  = "사용자 환불 요청"
	adminRefundReason = "관리자 환불"
)

// RefundOrder возвращает оплату по заказу владельца.
func (s *Service) RefundOrder(ctx context.Context, actor Actor, orderID, reason string) (*model.Order, error) {
	return s.refund(ctx, actor, orderID, cancelReason(reason, userRefundReason), false)
}

// AdminRefundOrder возвращает оплату по любому заказу от имени администратора.
func (s *Service) AdminRefundOrder(ctx context.Context, actor Actor, orderID, reason string) (*model.Order, error) {
	return s.refund(ctx, actor, orderID, cancelReason(reason, adminRefundReason), true)
}

// refund отменяет платёж в шлюзе и условно переводит заказ из paid в cancelled.
// Если после успешной отмены в шлюзе заказ уже изменился, возвращается ErrRefundConflict:
// такой случай требует ручной сверки и фиксируется отдельно.
func (s *Service) refund(ctx context.Context, actor Actor, orderID, reason string, admin bool) (*model.Order, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}
	if admin && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if o.Status != model.OrderStatusPaid {
		return nil, ErrInvalidState
	}
	if o.PaymentKey == nil || *o.PaymentKey == "" {
		return nil, ErrMissingPaymentKey
	}
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}

	if err := s.gateway.Cancel(ctx, *o.PaymentKey, reason); err != nil {
		return nil, err
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	if err := s.repo.CancelPaidOrder(ctx, o.OrderID, at); err != nil {
		if !errors.Is(err, repository.ErrNotMatched) || !s.cancelledBy(ctx, o.OrderID, at) {
			s.reconcile(o, err)
			if errors.Is(err, repository.ErrNotMatched) {
				return nil, ErrRefundConflict
			}
			return nil, err
		}
		s.logger.Info("order cancel already applied", zap.String("order_id", o.OrderID))
	}

	o.Status = model.OrderStatusCancelled
	o.PaidAt = nil
	o.CancelledAt = &at

	s.metrics.OrderTransitions.WithLabelValues(string(model.OrderStatusCancelled)).Inc()
	s.invalidateRecommendations(ctx, o.UserID)
	return o, nil
}

// cancelledBy сообщает, что заказ уже отменён этой же попыткой с отметкой at:
// повтор запроса после потерянного ответа БД не находит строку в статусе paid.
func (s *Service) cancelledBy(ctx context.Context, orderID string, at time.Time) bool {
	cur, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false
	}
	return cur.Status == model.OrderStatusCancelled && cur.CancelledAt != nil && cur.CancelledAt.Equal(at)
}

// reconcile фиксирует заказ, отменённый в шлюзе, но не отменённый локально.
func (s *Service) reconcile(o *model.Order, cause error) {
	s.logger.Error("refund reconciliation required",
		zap.String("order_id", o.OrderID),
		zap.String("payment_key", *o.PaymentKey),
		zap.Int64("amount", o.Amount),
		zap.Error(cause),
	)
	s.metrics.RefundReconcile.Inc()
	s.notifier.RefundReconciliation(o.OrderID, *o.PaymentKey)
}

func cancelReason(reason, fallback string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = fallback
	}
	if r := []rune(reason); len(r) > maxCancelReason {
		reason = string(r[:maxCancelReason])
	}
	return reason
}
