package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/service"
)

type createOrderRequest struct {
	MaterialID    string           `json:"materialId" validate:"required"`
	FileTypes     []model.FileType `json:"fileTypes" validate:"required,min=1,max=2,dive,oneof=problem etc"`
	PaymentMethod string           `json:"paymentMethod" validate:"max=30"`
	PaymentNote   string           `json:"paymentNote" validate:"max=200"`
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey" validate:"required,max=200"`
	OrderID    string `json:"orderId" validate:"required,max=64"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

type confirmResponse struct {
	Order       *model.Order `json:"order"`
	AlreadyPaid bool         `json:"alreadyPaid"`
}

type refundRequest struct {
	Reason string `json:"cancelReason" validate:"max=200"`
}

type orderStatusRequest struct {
	Status model.OrderStatus `json:"status" validate:"required"`
}

type processRequest struct {
	ProcessStatus string `json:"processStatus" validate:"required,oneof=pending done"`
}

type upgradeOrderRequest struct {
	ProductKey    string `json:"productKey" validate:"required,max=30"`
	ApplicantName string `json:"applicantName" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	CafeNickname  string `json:"cafeNickname" validate:"required"`
}

type upgradeOrderResponse struct {
	OrderID   string `json:"orderId"`
	Amount    int64  `json:"amount"`
	OrderName string `json:"orderName"`
}

type productsResponse struct {
	Products []model.Product `json:"products"`
}

// CreateOrder оформляет заказ на материал.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.service.CreateMaterialOrder(r.Context(), actor(r), service.CreateMaterialOrderInput{
		MaterialID:    req.MaterialID,
		FileTypes:     req.FileTypes,
		PaymentMethod: req.PaymentMethod,
		PaymentNote:   req.PaymentNote,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ListOrders возвращает страницу заказов.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListOrders(r.Context(), actor(r), service.OrderQuery{
		Kind:   model.OrderKind(q.Get("kind")),
		Status: model.OrderStatus(q.Get("status")),
		Page:   queryInt(r, "page"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ConfirmMaterialPayment подтверждает оплату заказа на материал.
func (h *Handler) ConfirmMaterialPayment(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, model.OrderKindMaterial)
}

// ConfirmUpgradePayment подтверждает оплату гостевого заказа повышения статуса.
func (h *Handler) ConfirmUpgradePayment(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, model.OrderKindUpgrade)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, kind model.OrderKind) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.ConfirmPayment(r.Context(), actor(r), kind, service.ConfirmInput{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Order: res.Order, AlreadyPaid: res.AlreadyPaid})
}

// RefundOrder возвращает оплату по заказу владельца.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	o, err := h.service.RefundOrder(r.Context(), actor(r), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// AdminRefundOrder возвращает оплату по любому заказу.
func (h *Handler) AdminRefundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	o, err := h.service.AdminRefundOrder(r.Context(), actor(r), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SetOrderStatus вручную отмечает заказ оплаченным.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetOrderStatus(r.Context(), actor(r), chi.URLParam(r, "orderId"), req.Status); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkUpgradeProcessed меняет статус обработки заказа повышения статуса.
func (h *Handler) MarkUpgradeProcessed(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.MarkUpgradeProcessed(r.Context(), actor(r), chi.URLParam(r, "orderId"), req.ProcessStatus); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProducts возвращает каталог повышения статуса.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: products})
}

// CreateUpgradeOrder оформляет гостевой заказ повышения статуса.
func (h *Handler) CreateUpgradeOrder(w http.ResponseWriter, r *http.Request) {
	var req upgradeOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, p, err := h.service.CreateUpgradeOrder(r.Context(), service.CreateUpgradeOrderInput{
		ProductKey:    req.ProductKey,
		ApplicantName: req.ApplicantName,
		Phone:         req.Phone,
		CafeNickname:  req.CafeNickname,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upgradeOrderResponse{OrderID: o.OrderID, Amount: o.Amount, OrderName: p.Name})
}
