package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/debtsync/internal/http/jobs"
	"github.com/MrJamesThe3rd/debtsync/internal/http/monitoring"
	"github.com/MrJamesThe3rd/debtsync/internal/http/payment"
	"github.com/MrJamesThe3rd/debtsync/internal/http/reconciliation"
	"github.com/MrJamesThe3rd/debtsync/internal/http/representative"
	"github.com/MrJamesThe3rd/debtsync/internal/http/rollback"
)

type Handlers struct {
	Payments        *payment.Handler
	Representatives *representative.Handler
	Reconciliation  *reconciliation.Handler
	Rollback        *rollback.Handler
	Jobs            *jobs.Handler
	Monitoring      *monitoring.Handler
}

func New(h Handlers, corsOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", h.Payments.Routes)
		r.Route("/representatives", h.Representatives.Routes)
		r.Route("/summary", h.Representatives.SummaryRoutes)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Reconciliation.Routes(r)
		})

		r.Route("/rollback", h.Rollback.Routes)
		r.Route("/jobs", h.Jobs.Routes)
		r.Route("/monitoring", h.Monitoring.Routes)
		r.Route("/cache", h.Monitoring.CacheRoutes)
	})

	return router
}
