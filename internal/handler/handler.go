// Package handler содержит HTTP-обработчики API магазина учебных материалов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/middleware"
	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/service"
	"github.com/mmeshcher/academy-store/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	ListUsers(ctx context.Context, actor service.Actor, q string, page int) (model.Page[model.User], error)
	UpdateUserRole(ctx context.Context, actor service.Actor, userID int64, role model.Role) error
	GetUserRating(ctx context.Context, actor service.Actor, userID int64) (*service.SkillView, error)
	UpdateUserRating(ctx context.Context, actor service.Actor, userID int64, patch service.RatingPatch) (*service.SkillView, error)

	ListMaterials(ctx context.Context, actor service.Actor, q service.MaterialQuery) (model.Page[model.Material], error)
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	CreateMaterial(ctx context.Context, actor service.Actor, in service.MaterialInput) (*model.Material, error)
	Download(ctx context.Context, actor service.Actor, materialID string, ft model.FileType) (*service.Download, error)

	CreateMaterialOrder(ctx context.Context, actor service.Actor, in service.CreateMaterialOrderInput) (*model.Order, error)
	CreateUpgradeOrder(ctx context.Context, in service.CreateUpgradeOrderInput) (*model.Order, *model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ConfirmPayment(ctx context.Context, actor service.Actor, kind model.OrderKind, in service.ConfirmInput) (*service.ConfirmResult, error)
	SetOrderStatus(ctx context.Context, actor service.Actor, orderID string, status model.OrderStatus) error
	ListOrders(ctx context.Context, actor service.Actor, q service.OrderQuery) (model.Page[model.Order], error)
	MarkUpgradeProcessed(ctx context.Context, actor service.Actor, orderID, processStatus string) error
	RefundOrder(ctx context.Context, actor service.Actor, orderID, reason string) (*model.Order, error)
	AdminRefundOrder(ctx context.Context, actor service.Actor, orderID, reason string) (*model.Order, error)

	SubmitFeedback(ctx context.Context, actor service.Actor, materialID string, d model.Difficulty) (*service.FeedbackResult, error)
	UndoFeedback(ctx context.Context, actor service.Actor, materialID string) error
	Recommend(ctx context.Context, actor service.Actor, mode service.RecommendMode, limit int) (*service.Recommendations, error)
	RecommendSimilar(ctx context.Context, actor service.Actor, limit int) ([]model.Material, error)
	AlsoBought(ctx context.Context, actor service.Actor, materialID string, limit int) ([]model.Material, error)

	CreateConsultation(ctx context.Context, in service.ConsultationInput) (*model.Consultation, error)
	ListConsultations(ctx context.Context, actor service.Actor, q service.ConsultationQuery) (model.Page[model.Consultation], error)
	UpdateConsultation(ctx context.Context, actor service.Actor, id string, in service.ConsultationUpdate) (*model.Consultation, error)
	ScheduleConsultation(ctx context.Context, actor service.Actor, id, date, clock string) (*model.Consultation, error)
	Broadcast(ctx context.Context, actor service.Actor, recipients []string, message string) (int, error)
	RemoveConsent(ctx context.Context, actor service.Actor, phones []string) (int64, error)
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decode читает JSON-тело запроса и проверяет его по тегам validate.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptional допускает пустое тело запроса.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeServiceError переводит ошибку бизнес-логики в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve   *service.ValidationError
		fe   *validation.FieldError
		perr *payment.Error
	)

	switch {
	case errors.As(err, &ve), errors.As(err, &fe):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		status := http.StatusBadRequest
		if perr.StatusCode >= http.StatusInternalServerError {
			status = http.StatusBadGateway
			h.logger.Error("payment gateway failure", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeJSON(w, status, errorResponse{Error: perr.Message, Code: perr.Code})
	case errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrMissingPaymentKey),
		errors.Is(err, service.ErrInvalidProduct):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrFileUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyPurchased),
		errors.Is(err, service.ErrDuplicateFeedback),
		errors.Is(err, service.ErrRefundConflict),
		errors.Is(err, service.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, service.ErrStorageNotConfigured):
		h.logger.Error("dependency not configured", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func actor(r *http.Request) service.Actor {
	return middleware.ActorFromContext(r.Context())
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// Health отвечает 200, если хранилище доступно.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
