package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/service"
)

type consultRequest struct {
	Type             model.ConsultationType `json:"type" validate:"required"`
	Name             string                 `json:"name" validate:"required"`
	Phone            string                 `json:"phone" validate:"required"`
	SchoolGrade      string                 `json:"schoolGrade" validate:"max=30"`
	CurrentScore     string                 `json:"currentScore" validate:"max=30"`
	TargetUniv       string                 `json:"targetUniv" validate:"max=100"`
	Direction        string                 `json:"direction" validate:"max=100"`
	GradeLevel       string                 `json:"gradeLevel" validate:"max=30"`
	Subject          string                 `json:"subject" validate:"max=30"`
	Message          string                 `json:"message"`
	MarketingConsent bool                   `json:"marketingConsent"`
}

type consultUpdateRequest struct {
	Status             *model.ConsultationStatus `json:"status"`
	AdminMemo          *string                   `json:"adminMemo" validate:"omitempty,max=2000"`
	ClearChangeRequest bool                      `json:"clearChangeRequest"`
}

type scheduleRequest struct {
	ScheduledDate string `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	ScheduledTime string `json:"scheduledTime" validate:"required,datetime=15:04"`
}

type broadcastRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=1000"`
	Message    string   `json:"message" validate:"required"`
}

type removeConsentRequest struct {
	Phones []string `json:"phones" validate:"required,min=1"`
}

type consultCreatedResponse struct {
	ConsultationID string `json:"consultationId"`
}

// CreateConsultation принимает заявку на консультацию.
func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.service.CreateConsultation(r.Context(), service.ConsultationInput{
		Type:             req.Type,
		Name:             req.Name,
		Phone:            req.Phone,
		SchoolGrade:      req.SchoolGrade,
		CurrentScore:     req.CurrentScore,
		TargetUniv:       req.TargetUniv,
		Direction:        req.Direction,
		GradeLevel:       req.GradeLevel,
		Subject:          req.Subject,
		Message:          req.Message,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, consultCreatedResponse{ConsultationID: c.ConsultationID})
}

// ListConsultations возвращает страницу заявок.
func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListConsultations(r.Context(), actor(r), service.ConsultationQuery{
		Type:   model.ConsultationType(q.Get("type")),
		Status: model.ConsultationStatus(q.Get("status")),
		Query:  q.Get("q"),
		Page:   queryInt(r, "page"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdateConsultation меняет статус или заметку заявки.
func (h *Handler) UpdateConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.service.UpdateConsultation(r.Context(), actor(r), chi.URLParam(r, "id"), service.ConsultationUpdate{
		Status:             req.Status,
		AdminMemo:          req.AdminMemo,
		ClearChangeRequest: req.ClearChangeRequest,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ScheduleConsultation назначает время консультации.
func (h *Handler) ScheduleConsultation(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.service.ScheduleConsultation(r.Context(), actor(r), chi.URLParam(r, "id"), req.ScheduledDate, req.ScheduledTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Broadcast ставит в очередь рекламную рассылку.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.service.Broadcast(r.Context(), actor(r), req.Recipients, req.Message)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}

// RemoveConsent отзывает согласие на рассылку.
func (h *Handler) RemoveConsent(w http.ResponseWriter, r *http.Request) {
	var req removeConsentRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.service.RemoveConsent(r.Context(), actor(r), req.Phones)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
