package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/service"
)

type registerRequest struct {
	Email            string `json:"email" validate:"required,email,max=254"`
	Username         string `json:"username" validate:"required,max=30"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
	Phone            string `json:"phone" validate:"omitempty,mobile"`
	MarketingConsent bool   `json:"marketingConsent"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type roleRequest struct {
	Role model.Role `json:"role" validate:"required,oneof=student teacher admin"`
}

type ratingRequest struct {
	OverallRating *int            `json:"overallRating" validate:"omitempty,min=0"`
	Topics        map[string]*int `json:"topicSkills"`
}

// Register регистрирует пользователя и выдаёт cookie авторизации.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Email:            req.Email,
		Username:         req.Username,
		Password:         req.Password,
		Phone:            req.Phone,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.issue(w, r, u, http.StatusCreated)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.issue(w, r, u, http.StatusOK)
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, u *model.User, status int) {
	token, err := h.authMiddleware.SetAuthCookie(w, u.ID, u.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{User: u, Token: token})
}

// ListUsers возвращает страницу пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListUsers(r.Context(), actor(r), r.URL.Query().Get("q"), queryInt(r, "page"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdateUserRole меняет роль пользователя.
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateUserRole(r.Context(), actor(r), id, req.Role); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserRating возвращает рейтинг пользователя.
func (h *Handler) GetUserRating(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetUserRating(r.Context(), actor(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateUserRating правит общий рейтинг и рейтинги тем пользователя.
func (h *Handler) UpdateUserRating(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.service.UpdateUserRating(r.Context(), actor(r), id, service.RatingPatch{
		OverallRating: req.OverallRating,
		Topics:        req.Topics,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}
