package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если запрошенная сущность не существует.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если у пользователя нет прав на ресурс.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized возвращается, если операция требует входа.
	ErrUnauthorized = errors.New("authentication required")
	// ErrConflict возвращается, если состояние изменилось между чтением и условной записью.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState возвращается, если заказ находится в неподходящем статусе.
	ErrInvalidState = errors.New("invalid order state")
	// ErrAmountMismatch возвращается, если сумма в запросе не совпадает с суммой заказа.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrMissingPaymentKey возвращается при возврате заказа, оплаченного не через шлюз.
	ErrMissingPaymentKey = errors.New("order has no payment key")
	// ErrInvalidProduct возвращается, если позиции каталога нет.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrAlreadyPurchased возвращается при повторной покупке оплаченного материала.
	ErrAlreadyPurchased = errors.New("material already purchased")
	// ErrDuplicateFeedback возвращается при повторной оценке материала.
	ErrDuplicateFeedback = errors.New("feedback already submitted")
	// ErrRefundConflict возвращается, если шлюз отменил платёж, а локальный заказ уже изменился.
	ErrRefundConflict = errors.New("order changed during refund, reconciliation required")
	// ErrUserExists возвращается при регистрации с занятым e-mail.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials возвращается при неверной паре e-mail и пароля.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrFileUnavailable возвращается, если у материала нет файла запрошенной категории.
	ErrFileUnavailable = errors.New("file not available")
)

// ValidationError описывает некорректный ввод.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
