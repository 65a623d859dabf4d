package reconciliation

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

const defaultHistory = 20

type Handler struct {
	engine *reconcile.Engine
}

func NewHandler(engine *reconcile.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/runs", h.run)
	r.Get("/runs", h.history)
	r.Get("/runs/{id}", h.status)
	r.Post("/runs/{id}/cancel", h.cancel)
	r.Post("/jobs", h.start)
}

type runRequest struct {
	Mode      ledger.Mode      `json:"mode" validate:"omitempty,oneof=dry enforce"`
	Scope     []string         `json:"scope" validate:"omitempty,dive,uuid"`
	Threshold *decimal.Decimal `json:"threshold"`
	Actor     string           `json:"actor" validate:"max=100"`
}

func (req runRequest) options() reconcile.Options {
	scope := make([]uuid.UUID, len(req.Scope))
	for i, s := range req.Scope {
		scope[i] = uuid.MustParse(s)
	}

	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	return reconcile.Options{Mode: req.Mode, Scope: scope, Threshold: req.Threshold, Actor: actor}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	out, err := h.engine.Run(r.Context(), req.options())
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toOutcomeResponse(out))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	id, err := h.engine.Start(req.options())
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusAccepted, map[string]uuid.UUID{"job_id": id})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultHistory)
	offset := queryInt(r, "offset", 0)

	runs, err := h.engine.History(r.Context(), limit, offset)
	if err != nil {
		render.Error(w, err)
		return
	}

	resp := make([]runResponse, len(runs))
	for i, run := range runs {
		resp[i] = toRunResponse(run)
	}

	render.JSON(w, http.StatusOK, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	detail, err := h.engine.Status(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	run, err := h.engine.Cancel(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toRunResponse(run))
}

func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}

	return n
}
