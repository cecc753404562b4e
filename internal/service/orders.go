package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/repository"
	"github.com/mmeshcher/academy-store/internal/validation"
)

const (
	ordersPerPage        = 20
	defaultPaymentMethod = "bank_transfer"
	gatewayPaymentMethod = "card"
)

// ProcessStatus заказа повышения статуса.
const (
	ProcessPending = "pending"
	ProcessDone    = "done"
)

// CreateMaterialOrderInput описывает оформление заказа на материал.
type CreateMaterialOrderInput struct {
	MaterialID    string
	FileTypes     []model.FileType
	PaymentMethod string
	PaymentNote   string
}

// CreateUpgradeOrderInput описывает оформление гостевого заказа повышения статуса.
type CreateUpgradeOrderInput struct {
	ProductKey    string
	ApplicantName string
	Phone         string
	CafeNickname  string
}

// ConfirmInput описывает данные, полученные клиентом от платёжного шлюза.
type ConfirmInput struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

// ConfirmResult описывает результат подтверждения оплаты.
type ConfirmResult struct {
	Order       *model.Order
	AlreadyPaid bool
}

// OrderQuery задаёт выборку заказов.
type OrderQuery struct {
	Kind   model.OrderKind
	Status model.OrderStatus
	Page   int
}

func newOrderID() string {
	return uuid.NewString()
}

// CreateMaterialOrder создаёт заказ на платный материал. Прежние неоплаченные заказы
// пользователя на этот материал удаляются, сумма вычисляется по ценам выбранных файлов.
func (s *Service) CreateMaterialOrder(ctx context.Context, actor Actor, in CreateMaterialOrderInput) (*model.Order, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}

	materialID := strings.TrimSpace(in.MaterialID)
	if materialID == "" {
		return nil, invalid("materialId", "required")
	}
	types, err := normalizeFileTypes(in.FileTypes)
	if err != nil {
		return nil, err
	}

	m, err := s.activeMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if m.IsFree {
		return nil, invalid("materialId", "free material does not need an order")
	}

	amount := orderAmount(m, types)
	if amount <= 0 {
		return nil, invalid("fileTypes", "selected files have no price")
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}

	o := &model.Order{
		OrderID:       newOrderID(),
		Kind:          model.OrderKindMaterial,
		UserID:        actor.UserID,
		MaterialID:    m.MaterialID,
		MaterialTitle: MaterialTitle(m),
		FileTypes:     types,
		Amount:        amount,
		Status:        model.OrderStatusPending,
		PaymentMethod: method,
		PaymentNote:   strings.TrimSpace(in.PaymentNote),
	}

	if err := s.repo.ReplacePendingOrder(ctx, o); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyPurchased):
			return nil, ErrAlreadyPurchased
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	s.metrics.OrderTransitions.WithLabelValues(string(model.OrderStatusPending)).Inc()
	return o, nil
}

// CreateUpgradeOrder создаёт гостевой заказ повышения статуса по позиции каталога.
func (s *Service) CreateUpgradeOrder(ctx context.Context, in CreateUpgradeOrderInput) (*model.Order, *model.Product, error) {
	key := strings.ToLower(strings.TrimSpace(in.ProductKey))
	if key == "" {
		return nil, nil, ErrInvalidProduct
	}

	name := strings.TrimSpace(in.ApplicantName)
	if n := utf8.RuneCountInString(name); n == 0 || n > 30 {
		return nil, nil, invalid("applicantName", "must be 1 to 30 characters")
	}
	phone := validation.ContactPhone(in.Phone)
	if len(phone) < 8 || len(phone) > 20 {
		return nil, nil, invalid("phone", "must be 8 to 20 digits or hyphens")
	}
	nickname := strings.TrimSpace(in.CafeNickname)
	if n := utf8.RuneCountInString(nickname); n == 0 || n > 40 {
		return nil, nil, invalid("cafeNickname", "must be 1 to 40 characters")
	}

	product, err := s.repo.GetProduct(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, nil, ErrInvalidProduct
		}
		return nil, nil, err
	}

	o := &model.Order{
		OrderID:       newOrderID(),
		Kind:          model.OrderKindUpgrade,
		ProductKey:    product.Key,
		MaterialTitle: product.Name,
		Amount:        product.Amount,
		Status:        model.OrderStatusPending,
		PaymentMethod: gatewayPaymentMethod,
		ApplicantName: name,
		Phone:         phone,
		CafeNickname:  nickname,
		ProcessStatus: ProcessPending,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, nil, err
	}

	s.metrics.OrderTransitions.WithLabelValues(string(model.OrderStatusPending)).Inc()
	return o, product, nil
}

// ListProducts возвращает каталог повышения статуса.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// ConfirmPayment подтверждает оплату заказа вида kind через платёжный шлюз.
// Повторное подтверждение оплаченного заказа возвращает AlreadyPaid без обращения к шлюзу.
// Ошибка шлюза возвращается как *payment.Error, локальное состояние при этом не меняется.
func (s *Service) ConfirmPayment(ctx context.Context, actor Actor, kind model.OrderKind, in ConfirmInput) (*ConfirmResult, error) {
	in.PaymentKey = strings.TrimSpace(in.PaymentKey)
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.PaymentKey == "" || in.OrderID == "" || in.Amount <= 0 {
		return nil, invalid("", "paymentKey, orderId and amount are required")
	}

	o, err := s.getOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Kind != kind {
		return nil, ErrNotFound
	}
	if err := checkOwner(actor, o); err != nil {
		return nil, err
	}
	if o.Amount != in.Amount {
		return nil, ErrAmountMismatch
	}

	switch o.Status {
	case model.OrderStatusPaid:
		return &ConfirmResult{Order: o, AlreadyPaid: true}, nil
	case model.OrderStatusCancelled:
		return nil, ErrInvalidState
	}

	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}

	conf, err := s.gateway.Confirm(ctx, payment.ConfirmRequest{
		PaymentKey: in.PaymentKey,
		OrderID:    o.OrderID,
		Amount:     o.Amount,
	})
	if err != nil {
		return nil, err
	}

	method := conf.Method
	if method == "" {
		method = gatewayPaymentMethod
	}
	paidAt := s.now()
	key := in.PaymentKey

	if err := s.repo.MarkOrderPaid(ctx, o.OrderID, &key, method, paidAt); err != nil {
		if !errors.Is(err, repository.ErrNotMatched) {
			return nil, err
		}
		current, gerr := s.getOrder(ctx, o.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == model.OrderStatusPaid {
			return &ConfirmResult{Order: current, AlreadyPaid: true}, nil
		}
		s.logger.Warn("order changed during confirmation",
			zap.String("order_id", o.OrderID), zap.String("status", string(current.Status)))
		return nil, ErrConflict
	}

	o.Status = model.OrderStatusPaid
	o.PaymentKey = &key
	o.PaymentMethod = method
	o.PaidAt = &paidAt

	s.metrics.OrderTransitions.WithLabelValues(string(model.OrderStatusPaid)).Inc()
	s.invalidateRecommendations(ctx, o.UserID)
	return &ConfirmResult{Order: o}, nil
}

// SetOrderStatus меняет статус заказа вручную (подтверждение банковского перевода).
// Допускается только перевод в paid; отмена возможна лишь через возврат.
func (s *Service) SetOrderStatus(ctx context.Context, actor Actor, orderID string, status model.OrderStatus) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	switch status {
	case model.OrderStatusPaid:
	case model.OrderStatusCancelled:
		return invalid("status", "orders can only be cancelled through a refund")
	default:
		return invalid("status", "unsupported status")
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch o.Status {
	case model.OrderStatusPaid:
		return nil
	case model.OrderStatusCancelled:
		return ErrInvalidState
	}

	if err := s.repo.MarkOrderPaid(ctx, o.OrderID, nil, o.PaymentMethod, s.now()); err != nil {
		if !errors.Is(err, repository.ErrNotMatched) {
			return err
		}
		current, gerr := s.getOrder(ctx, o.OrderID)
		if gerr != nil {
			return gerr
		}
		if current.Status == model.OrderStatusPaid {
			return nil
		}
		return ErrConflict
	}

	s.metrics.OrderTransitions.WithLabelValues(string(model.OrderStatusPaid)).Inc()
	s.invalidateRecommendations(ctx, o.UserID)
	return nil
}

// ListOrders возвращает страницу заказов. Пользователь видит только свои заказы материалов,
// администратор видит все.
func (s *Service) ListOrders(ctx context.Context, actor Actor, q OrderQuery) (model.Page[model.Order], error) {
	if !actor.Authenticated() {
		return model.Page[model.Order]{}, ErrUnauthorized
	}
	switch q.Status {
	case "", model.OrderStatusPending, model.OrderStatusPaid, model.OrderStatusCancelled:
	default:
		return model.Page[model.Order]{}, invalid("status", "unknown status")
	}

	f := model.OrderFilter{
		Kind:    q.Kind,
		Status:  q.Status,
		Page:    pageOrFirst(q.Page),
		PerPage: ordersPerPage,
	}
	if !actor.IsAdmin() {
		f.UserID = actor.UserID
		f.Kind = model.OrderKindMaterial
	}

	items, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return model.Page[model.Order]{}, err
	}
	return model.NewPage(items, total, f.Page, f.PerPage), nil
}

// MarkUpgradeProcessed меняет статус обработки заказа повышения статуса.
func (s *Service) MarkUpgradeProcessed(ctx context.Context, actor Actor, orderID, processStatus string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if processStatus != ProcessPending && processStatus != ProcessDone {
		return invalid("processStatus", "must be pending or done")
	}
	if err := s.repo.SetProcessStatus(ctx, orderID, processStatus); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) getOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func checkOwner(actor Actor, o *model.Order) error {
	if !o.HasOwner() {
		return nil
	}
	if !actor.Authenticated() {
		return ErrUnauthorized
	}
	if actor.UserID != o.UserID {
		return ErrForbidden
	}
	return nil
}

func normalizeFileTypes(in []model.FileType) ([]model.FileType, error) {
	if len(in) == 0 {
		return nil, invalid("fileTypes", "required")
	}
	seen := make(map[model.FileType]bool, len(in))
	out := make([]model.FileType, 0, len(in))
	for _, ft := range in {
		if !ft.Valid() {
			return nil, invalid("fileTypes", fmt.Sprintf("unknown file type %q", ft))
		}
		if seen[ft] {
			continue
		}
		seen[ft] = true
		out = append(out, ft)
	}
	return out, nil
}

func orderAmount(m *model.Material, types []model.FileType) int64 {
	var amount int64
	for _, ft := range types {
		switch ft {
		case model.FileTypeProblem:
			amount += m.PriceProblem
		case model.FileTypeEtc:
			amount += m.PriceEtc
		}
	}
	return amount
}

// MaterialTitle собирает отображаемое название материала.
func MaterialTitle(m *model.Material) string {
	parts := make([]string, 0, 5)
	if m.SchoolName != "" {
		parts = append(parts, m.SchoolName)
	}
	if m.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d년", m.Year))
	}
	if m.GradeNumber > 0 {
		parts = append(parts, fmt.Sprintf("%d학년", m.GradeNumber))
	}
	if m.Subject != "" {
		parts = append(parts, m.Subject)
	}
	if m.Topic != "" {
		parts = append(parts, m.Topic)
	}
	return strings.Join(parts, " ")
}
