package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/taxflow/internal/middleware"
	"github.com/mmeshcher/taxflow/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger, h.metrics))
	r.Use(custommiddleware.GzipMiddleware)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.RegisterUser)
			})

			r.Route("/dossiers", func(r chi.Router) {
				r.Get("/", h.ListDossiers)
				r.Post("/", h.CreateDossier)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetDossier)
					r.Delete("/", h.DeleteDossier)
					r.Post("/calculation", h.CalculateDossier)
					r.Post("/payment", h.PayDossier)
					r.Post("/cancellation", h.CancelDossier)
				})
			})

			r.Route("/resource-orders", func(r chi.Router) {
				r.Get("/", h.ListResourceOrders)
				r.Post("/", h.CreateResourceOrder)
				r.Post("/{id}/delivery", h.DeliverResourceOrder)
				r.Post("/{id}/receipt", h.ReceiveResourceOrder)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", h.ListMessages)
				r.Post("/", h.SendMessage)
				r.Put("/{id}/confirm", h.ConfirmMessage)
			})

			r.Get("/auditlogs", h.ListAuditLogs)

			r.Route("/personnel", func(r chi.Router) {
				r.Get("/", h.ListPersonnel)
				r.Post("/", h.CreatePersonnel)
				r.Put("/{id}", h.UpdatePersonnel)
				r.Delete("/{id}", h.DeletePersonnel)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: model.KindNotFound, Message: "route not found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}
