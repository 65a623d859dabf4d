package rollback

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
	"github.com/MrJamesThe3rd/debtsync/internal/rollback"
)

const dateLayout = "2006-01-02"

type Handler struct {
	engine *rollback.Engine
}

func NewHandler(engine *rollback.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/report", h.report)
	r.With(middleware.AllowContentType("application/json")).Post("/", h.rollback)
}

type rollbackRequest struct {
	IssueDate         string   `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	RepresentativeIDs []string `json:"representative_ids" validate:"omitempty,dive,uuid"`
	InvoiceIDs        []string `json:"invoice_ids" validate:"omitempty,dive,uuid"`
	Execute           bool     `json:"execute"`
	Actor             string   `json:"actor" validate:"max=100"`
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	sel := rollback.Selector{
		RepresentativeIDs: parseIDs(req.RepresentativeIDs),
		InvoiceIDs:        parseIDs(req.InvoiceIDs),
	}

	if req.IssueDate != "" {
		day, _ := time.Parse(dateLayout, req.IssueDate)
		sel.IssueDate = &day
	}

	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	res, err := h.engine.Rollback(r.Context(), rollback.Request{Selector: sel, DryRun: !req.Execute, Actor: actor})
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toResultResponse(res))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		render.Error(w, fmt.Errorf("%w: date must be YYYY-MM-DD", render.ErrBadRequest))
		return
	}

	report, err := h.engine.DateReport(r.Context(), day)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toDateReportResponse(report))
}

func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, uuid.MustParse(s))
	}

	return ids
}
