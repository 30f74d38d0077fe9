package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/autoclass/attendd/internal/http/handlers"
)

// NewRouter creates the admin API router with all routes configured
func NewRouter(admin *handlers.AdminHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", admin.HandleHealth)

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", admin.HandleListAccounts)
		r.Post("/", admin.HandleAddAccount)
		r.Delete("/{studentNumber}", admin.HandleRemoveAccount)
	})

	r.Post("/check", admin.HandleCheck)

	return r
}
