package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/service"
)

type materialRequest struct {
	MaterialID       string         `json:"materialId" validate:"omitempty,max=64"`
	Type             string         `json:"type" validate:"required,max=30"`
	Subject          string         `json:"subject" validate:"required,max=30"`
	Topic            string         `json:"topic" validate:"max=50"`
	SchoolName       string         `json:"schoolName" validate:"max=50"`
	Year             int            `json:"year" validate:"omitempty,gte=2000,lte=2100"`
	GradeNumber      int            `json:"gradeNumber" validate:"omitempty,gte=1,lte=3"`
	Difficulty       int            `json:"difficulty" validate:"omitempty,gte=1,lte=5"`
	DifficultyRating int            `json:"difficultyRating" validate:"omitempty,min=0"`
	TargetAudience   model.Audience `json:"targetAudience" validate:"omitempty,oneof=student teacher all"`
	IsFree           bool           `json:"isFree"`
	PriceProblem     int64          `json:"priceProblem" validate:"min=0"`
	PriceEtc         int64          `json:"priceEtc" validate:"min=0"`
	ProblemFile      string         `json:"problemFile" validate:"max=512"`
	EtcFile          string         `json:"etcFile" validate:"max=512"`
}

type feedbackRequest struct {
	MaterialID string           `json:"materialId" validate:"required"`
	Difficulty model.Difficulty `json:"difficulty" validate:"required,oneof=easy normal hard"`
}

type materialsResponse struct {
	Materials []model.Material `json:"materials"`
}

// ListMaterials возвращает страницу каталога.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListMaterials(r.Context(), actor(r), service.MaterialQuery{
		Subject: q.Get("subject"),
		Topic:   q.Get("topic"),
		Query:   strings.TrimSpace(q.Get("q")),
		Sort:    model.MaterialSort(q.Get("sort")),
		Page:    queryInt(r, "page"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetMaterial возвращает материал.
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMaterial(r.Context(), chi.URLParam(r, "materialId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMaterial добавляет материал в каталог.
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.service.CreateMaterial(r.Context(), actor(r), service.MaterialInput{
		MaterialID:       req.MaterialID,
		Type:             req.Type,
		Subject:          req.Subject,
		Topic:            req.Topic,
		SchoolName:       req.SchoolName,
		Year:             req.Year,
		GradeNumber:      req.GradeNumber,
		Difficulty:       req.Difficulty,
		DifficultyRating: req.DifficultyRating,
		TargetAudience:   req.TargetAudience,
		IsFree:           req.IsFree,
		PriceProblem:     req.PriceProblem,
		PriceEtc:         req.PriceEtc,
		ProblemFile:      req.ProblemFile,
		EtcFile:          req.EtcFile,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// AlsoBought возвращает материалы, купленные вместе с указанным.
func (h *Handler) AlsoBought(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.AlsoBought(r.Context(), actor(r), chi.URLParam(r, "materialId"), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materialsResponse{Materials: items})
}

// Recommend возвращает рекомендации для ученика или учителя.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Recommend(r.Context(), actor(r),
		service.RecommendMode(r.URL.Query().Get("mode")), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RecommendSimilar возвращает материалы, популярные у пользователей близкого уровня.
func (h *Handler) RecommendSimilar(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.RecommendSimilar(r.Context(), actor(r), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materialsResponse{Materials: items})
}

// Download перенаправляет на временную ссылку файла. Клиент, запросивший JSON,
// получает ссылку в теле ответа.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Download(r.Context(), actor(r), chi.URLParam(r, "materialId"),
		model.FileType(r.URL.Query().Get("type")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, d)
		return
	}
	http.Redirect(w, r, d.URL, http.StatusFound)
}

// SubmitFeedback применяет оценку сложности материала.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.SubmitFeedback(r.Context(), actor(r), req.MaterialID, req.Difficulty)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UndoFeedback отменяет оценку материала.
func (h *Handler) UndoFeedback(w http.ResponseWriter, r *http.Request) {
	materialID := r.URL.Query().Get("materialId")
	if materialID == "" {
		writeError(w, http.StatusBadRequest, "materialId is required")
		return
	}
	if err := h.service.UndoFeedback(r.Context(), actor(r), materialID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
