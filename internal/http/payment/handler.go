package payment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/http/render"
	"github.com/MrJamesThe3rd/debtsync/internal/intake"
)

const maxUploadSize = 10 << 20

type Handler struct {
	svc      *allocation.Service
	importer *intake.Importer
}

func NewHandler(svc *allocation.Service, importer *intake.Importer) *Handler {
	return &Handler{svc: svc, importer: importer}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/import", h.importCSV)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/", h.record)
		r.Post("/{id}/allocate", h.allocate)
		r.Post("/{id}/allocate/manual", h.allocateManual)
	})
}

type recordRequest struct {
	RepresentativeID string          `json:"representative_id" validate:"required,uuid"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Reference        string          `json:"reference" validate:"max=255"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	params := allocation.PaymentParams{
		RepresentativeID: uuid.MustParse(req.RepresentativeID),
		Amount:           req.Amount,
		Reference:        req.Reference,
	}

	if req.PaymentDate != "" {
		params.PaymentDate, _ = time.Parse(time.DateOnly, req.PaymentDate)
	}

	p, err := h.svc.RecordPayment(r.Context(), params)
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusCreated, toPaymentResponse(p))
}

type allocateRequest struct {
	Actor string `json:"actor" validate:"max=100"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	var req allocateRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	res, err := h.svc.AutoAllocate(r.Context(), id, actorOr(req.Actor))
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toResultResponse(res))
}

type manualRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
	Actor     string          `json:"actor" validate:"max=100"`
}

func (h *Handler) allocateManual(w http.ResponseWriter, r *http.Request) {
	id, err := render.ID(r, "id")
	if err != nil {
		render.Error(w, err)
		return
	}

	var req manualRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, err)
		return
	}

	res, err := h.svc.ManualAllocate(r.Context(), allocation.ManualParams{
		PaymentID: id,
		InvoiceID: uuid.MustParse(req.InvoiceID),
		Amount:    req.Amount,
		Actor:     actorOr(req.Actor),
	})
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toResultResponse(res))
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	auto, _ := strconv.ParseBool(r.FormValue("auto_allocate"))

	sum, err := h.importer.Import(r.Context(), file, intake.ImportOptions{
		AutoAllocate: auto,
		Actor:        actorOr(r.FormValue("actor")),
	})
	if err != nil {
		render.Error(w, err)
		return
	}

	render.JSON(w, http.StatusOK, toImportResponse(sum))
}

func actorOr(actor string) string {
	if actor == "" {
		return "api"
	}

	return actor
}
