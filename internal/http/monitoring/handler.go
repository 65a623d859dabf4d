package monitoring

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
	"github.com/MrJamesThe3rd/debtsync/internal/monitoring"
)

const maxTrendDays = 365

type Handler struct {
	svc   *monitoring.Service
	cache *cache.Manager
}

func NewHandler(svc *monitoring.Service, c *cache.Manager) *Handler {
	return &Handler{svc: svc, cache: c}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/metrics", h.metrics)
	r.Get("/trends", h.trends)
	r.Get("/alerts", h.alerts)
	r.Get("/report", h.report)
}

// CacheRoutes exposes the shared cache counters.
func (h *Handler) CacheRoutes(r chi.Router) {
	r.Get("/stats", h.cacheStats)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Metrics(r.Context())
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, m)
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 || days > maxTrendDays {
		days = 0
	}

	trends, err := h.svc.Trends(r.Context(), days)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, trends)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.Alerts(r.Context())
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context())
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, report)
}

func (h *Handler) cacheStats(w http.ResponseWriter, _ *http.Request) {
	render.JSON(w, http.StatusOK, h.cache.Stats())
}
