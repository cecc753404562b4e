package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/model"
)

// Templates задаёт идентификаторы шаблонов алимтока.
type Templates struct {
	Applicant string
	Admin     string
	Schedule  string
}

// Notifier связывает события магазина с каналами доставки.
// Все методы возвращаются сразу; результат доставки виден только в логах и метриках.
type Notifier struct {
	dispatcher *Dispatcher
	solapi     *Solapi
	telegram   *Telegram
	templates  Templates
	adminPhone string
	logger     *zap.Logger
}

// NewNotifier создаёт Notifier; solapi и telegram могут быть nil.
func NewNotifier(d *Dispatcher, solapi *Solapi, telegram *Telegram, templates Templates, adminPhone string, logger *zap.Logger) *Notifier {
	return &Notifier{
		dispatcher: d,
		solapi:     solapi,
		telegram:   telegram,
		templates:  templates,
		adminPhone: adminPhone,
		logger:     logger.With(zap.String("component", "notifier")),
	}
}

// ConsultationCreated оповещает заявителя и администратора о новой заявке.
func (n *Notifier) ConsultationCreated(c model.Consultation) {
	label := c.Type.Label()

	if n.solapi.Configured() && n.templates.Applicant != "" {
		n.submit("consult_applicant", func(ctx context.Context) error {
			return n.solapi.SendAlimtalk(ctx, c.Phone, n.templates.Applicant, map[string]string{
				"#{name}": c.Name,
				"#{type}": label,
			})
		})
	}

	if n.solapi.Configured() && n.templates.Admin != "" && n.adminPhone != "" {
		message := c.Message
		if message == "" {
			message = "(없음)"
		}
		n.submit("consult_admin", func(ctx context.Context) error {
			return n.solapi.SendAlimtalk(ctx, n.adminPhone, n.templates.Admin, map[string]string{
				"#{name}":    c.Name,
				"#{phone}":   c.Phone,
				"#{type}":    label,
				"#{message}": message,
			})
		})
	}

	n.alert("consult_telegram", fmt.Sprintf("새 상담 신청: %s (%s) %s", c.Name, label, c.Phone))
}

// ScheduleConfirmed оповещает заявителя о назначенном времени консультации.
func (n *Notifier) ScheduleConfirmed(c model.Consultation) {
	if !n.solapi.Configured() || n.templates.Schedule == "" {
		n.logger.Debug("schedule notification skipped", zap.String("consultation_id", c.ConsultationID))
		return
	}
	n.submit("consult_schedule", func(ctx context.Context) error {
		return n.solapi.SendAlimtalk(ctx, c.Phone, n.templates.Schedule, map[string]string{
			"#{name}": c.Name,
			"#{date}": c.ScheduledDate,
			"#{time}": c.ScheduledTime,
		})
	})
}

// Broadcast рассылает рекламное сообщение получателям с согласием на рассылку.
func (n *Notifier) Broadcast(recipients []string, message string) {
	if !n.solapi.Configured() {
		n.logger.Debug("broadcast skipped", zap.Int("recipients", len(recipients)))
		return
	}
	n.submit("broadcast", func(ctx context.Context) error {
		return n.solapi.SendBrand(ctx, recipients, message)
	})
}

// RefundReconciliation сообщает администраторам о возврате, который требует ручной сверки.
func (n *Notifier) RefundReconciliation(orderID, paymentKey string) {
	n.alert("refund_reconcile", fmt.Sprintf("환불 대사 필요: order=%s paymentKey=%s", orderID, paymentKey))
}

func (n *Notifier) alert(event, text string) {
	if n.telegram == nil {
		return
	}
	n.submit(event, func(ctx context.Context) error {
		return n.telegram.Send(ctx, text)
	})
}

func (n *Notifier) submit(event string, send func(ctx context.Context) error) {
	if err := n.dispatcher.Go(event, send); err != nil && !errors.Is(err, ErrClosed) {
		n.logger.Error("notification not queued", zap.String("event", event), zap.Error(err))
	}
}
