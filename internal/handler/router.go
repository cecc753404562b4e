package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/academy-store/internal/middleware"
	"github.com/mmeshcher/academy-store/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	auth := h.authMiddleware
	admin := custommiddleware.RequireRole(model.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Optional)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Route("/m", func(r chi.Router) {
			r.Get("/materials", h.ListMaterials)
			r.Get("/materials/{materialId}", h.GetMaterial)
			r.Get("/materials/{materialId}/also-bought", h.AlsoBought)
			r.Get("/recommend", h.Recommend)

			r.Group(func(r chi.Router) {
				r.Use(auth.Required)

				r.Get("/recommend/similar", h.RecommendSimilar)
				r.Post("/orders", h.CreateOrder)
				r.Get("/orders", h.ListOrders)
				r.Post("/orders/{orderId}/refund", h.RefundOrder)
				r.Post("/payments/confirm", h.ConfirmMaterialPayment)
				r.Get("/download/{materialId}", h.Download)
				r.Post("/feedback", h.SubmitFeedback)
				r.Delete("/feedback", h.UndoFeedback)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.Required, admin)

				r.Post("/materials", h.CreateMaterial)
				r.Patch("/orders/{orderId}", h.SetOrderStatus)
				r.Post("/admin/orders/{orderId}/refund", h.AdminRefundOrder)
				r.Patch("/admin/community-upgrade-orders/{orderId}", h.MarkUpgradeProcessed)
				r.Get("/admin/users", h.ListUsers)
				r.Patch("/admin/users/{userId}", h.UpdateUserRole)
				r.Get("/admin/users/{userId}/rating", h.GetUserRating)
				r.Patch("/admin/users/{userId}/rating", h.UpdateUserRating)
				r.Post("/admin/broadcast/remove-consent", h.RemoveConsent)
			})
		})

		r.Route("/community", func(r chi.Router) {
			r.Get("/products", h.ListProducts)
			r.Post("/orders", h.CreateUpgradeOrder)
			r.Post("/payments/confirm", h.ConfirmUpgradePayment)
		})

		r.Post("/consult", h.CreateConsultation)
		r.Group(func(r chi.Router) {
			r.Use(auth.Required, admin)

			r.Get("/consult", h.ListConsultations)
			r.Patch("/consult/{id}", h.UpdateConsultation)
			r.Post("/consult/{id}/schedule", h.ScheduleConsultation)
			r.Post("/broadcast", h.Broadcast)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
