package representative

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type debtResponse struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalAllocated   decimal.Decimal `json:"total_allocated"`
	LedgerDebt       decimal.Decimal `json:"ledger_debt"`
	CachedDebt       decimal.Decimal `json:"cached_debt"`
	Drift            decimal.Decimal `json:"drift"`
}

func toDebtResponse(v *debt.View) debtResponse {
	return debtResponse{
		RepresentativeID: v.RepresentativeID,
		Code:             v.Code,
		Name:             v.Name,
		TotalInvoiced:    v.TotalInvoiced,
		TotalAllocated:   v.TotalAllocated,
		LedgerDebt:       v.LedgerDebt,
		CachedDebt:       v.CachedDebt,
		Drift:            v.Drift,
	}
}

type invoiceResponse struct {
	ID        uuid.UUID            `json:"id"`
	Number    string               `json:"number"`
	Amount    decimal.Decimal      `json:"amount"`
	Allocated decimal.Decimal      `json:"allocated"`
	Remaining decimal.Decimal      `json:"remaining"`
	Status    ledger.InvoiceStatus `json:"status"`
	IssueDate string               `json:"issue_date"`
	DueDate   *string              `json:"due_date,omitempty"`
}

func toInvoiceList(balances []ledger.InvoiceBalance) []invoiceResponse {
	resp := make([]invoiceResponse, len(balances))

	for i, b := range balances {
		resp[i] = invoiceResponse{
			ID:        b.Invoice.ID,
			Number:    b.Invoice.Number,
			Amount:    b.Invoice.Amount,
			Allocated: b.Allocated,
			Remaining: b.Remaining(),
			Status:    b.Invoice.Status,
			IssueDate: b.Invoice.IssueDate.Format(time.DateOnly),
		}

		if b.Invoice.DueDate != nil {
			resp[i].DueDate = new(b.Invoice.DueDate.Format(time.DateOnly))
		}
	}

	return resp
}

type allocationSummaryResponse struct {
	RepresentativeID    uuid.UUID       `json:"representative_id"`
	Payments            int             `json:"payments"`
	AllocatedPayments   int             `json:"allocated_payments"`
	UnallocatedPayments int             `json:"unallocated_payments"`
	AllocatedAmount     decimal.Decimal `json:"allocated_amount"`
	UnallocatedAmount   decimal.Decimal `json:"unallocated_amount"`
	OutstandingInvoices int             `json:"outstanding_invoices"`
	OutstandingAmount   decimal.Decimal `json:"outstanding_amount"`
}

func toAllocationSummary(s *allocation.Summary) allocationSummaryResponse {
	return allocationSummaryResponse(*s)
}

type violationResponse struct {
	Kind      allocation.ViolationKind `json:"kind"`
	PaymentID *uuid.UUID               `json:"payment_id,omitempty"`
	InvoiceID *uuid.UUID               `json:"invoice_id,omitempty"`
	Detail    string                   `json:"detail"`
}

type validationResponse struct {
	RepresentativeID uuid.UUID           `json:"representative_id"`
	Valid            bool                `json:"valid"`
	Violations       []violationResponse `json:"violations"`
}

func toValidationResponse(v *allocation.Validation) validationResponse {
	resp := validationResponse{
		RepresentativeID: v.RepresentativeID,
		Valid:            v.Valid,
		Violations:       make([]violationResponse, len(v.Violations)),
	}

	for i, vi := range v.Violations {
		resp.Violations[i] = violationResponse(vi)
	}

	return resp
}

type allocatedDTO struct {
	PaymentID          uuid.UUID       `json:"payment_id"`
	InvoiceID          uuid.UUID       `json:"invoice_id"`
	Allocated          decimal.Decimal `json:"allocated"`
	RemainderPaymentID *uuid.UUID      `json:"remainder_payment_id,omitempty"`
}

type failureDTO struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

type bulkResponse struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Allocations      []allocatedDTO  `json:"allocations"`
	Failures         []failureDTO    `json:"failures"`
	TotalAllocated   decimal.Decimal `json:"total_allocated"`
}

func toBulkResponse(b *allocation.BulkResult) bulkResponse {
	resp := bulkResponse{
		RepresentativeID: b.RepresentativeID,
		Allocations:      make([]allocatedDTO, len(b.Results)),
		Failures:         make([]failureDTO, len(b.Failures)),
		TotalAllocated:   b.TotalAllocated,
	}

	for i, r := range b.Results {
		resp.Allocations[i] = allocatedDTO{
			PaymentID:          r.PaymentID,
			InvoiceID:          r.InvoiceID,
			Allocated:          r.Allocated,
			RemainderPaymentID: r.RemainderPaymentID,
		}
	}

	for i, f := range b.Failures {
		resp.Failures[i] = failureDTO(f)
	}

	return resp
}

type backfillResponse struct {
	RepresentativeID uuid.UUID `json:"representative_id"`
	Created          int       `json:"created"`
}

type debtorDTO struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Code             string          `json:"code"`
	LedgerDebt       decimal.Decimal `json:"ledger_debt"`
	CachedDebt       decimal.Decimal `json:"cached_debt"`
}

type summaryResponse struct {
	Representatives int             `json:"representatives"`
	Debtors         int             `json:"debtors"`
	TotalInvoiced   decimal.Decimal `json:"total_invoiced"`
	TotalAllocated  decimal.Decimal `json:"total_allocated"`
	LedgerDebt      decimal.Decimal `json:"ledger_debt"`
	CachedDebt      decimal.Decimal `json:"cached_debt"`
	TopDebtors      []debtorDTO     `json:"top_debtors"`
}

func toSummaryResponse(s *debt.Summary, debtors []*debt.View) summaryResponse {
	resp := summaryResponse{
		Representatives: s.Representatives,
		Debtors:         s.Debtors,
		TotalInvoiced:   s.TotalInvoiced,
		TotalAllocated:  s.TotalAllocated,
		LedgerDebt:      s.LedgerDebt,
		CachedDebt:      s.CachedDebt,
		TopDebtors:      make([]debtorDTO, len(debtors)),
	}

	for i, d := range debtors {
		resp.TopDebtors[i] = debtorDTO{
			RepresentativeID: d.RepresentativeID,
			Code:             d.Code,
			LedgerDebt:       d.LedgerDebt,
			CachedDebt:       d.CachedDebt,
		}
	}

	return resp
}
