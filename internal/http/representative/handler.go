package representative

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
)

const defaultTop = 10

type Handler struct {
	debts  *debt.Query
	allocs *allocation.Service
}

func NewHandler(debts *debt.Query, allocs *allocation.Service) *Handler {
	return &Handler{debts: debts, allocs: allocs}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}/debt", h.debt)
	r.Get("/{id}/invoices", h.invoices)
	r.Get("/{id}/allocations/summary", h.allocationSummary)
	r.Get("/{id}/allocations/validate", h.validate)
	r.Post("/{id}/allocate", h.allocateAll)
	r.Post("/{id}/backfill", h.backfill)
}

// SummaryRoutes serves the ledger-wide debt summary.
func (h *Handler) SummaryRoutes(r chi.Router) {
	r.Get("/", h.summary)
}

func (h *Handler) debt(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	v, err := h.debts.Debt(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toDebtResponse(v))
}

func (h *Handler) invoices(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	balances, err := h.debts.Invoices(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toInvoiceList(balances))
}

func (h *Handler) allocationSummary(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	s, err := h.allocs.Summary(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toAllocationSummary(s))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	v, err := h.allocs.Validate(r.Context(), id)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toValidationResponse(v))
}

type actorRequest struct {
	Actor string `json:"actor" validate:"max=100"`
}

func (h *Handler) allocateAll(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	var req actorRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	res, err := h.allocs.AllocateRepresentative(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toBulkResponse(res))
}

func (h *Handler) backfill(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	var req actorRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	res, err := h.allocs.Backfill(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, backfillResponse{RepresentativeID: res.RepresentativeID, Created: res.Created})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	top := defaultTop
	if s := r.URL.Query().Get("top"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			top = n
		}
	}

	s, err := h.debts.Summary(r.Context())
	if err != nil {
		render.Error(w, err)
		return
	}

	debtors, err := h.debts.TopDebtors(r.Context(), top)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toSummaryResponse(s, debtors))
}

func actorOr(actor string) string {
	if actor == "" {
		return "api"
	}

	return actor
}
