package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/intake"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type paymentResponse struct {
	ID               uuid.UUID       `json:"id"`
	RepresentativeID uuid.UUID       `json:"representative_id"`
	InvoiceID        *uuid.UUID      `json:"invoice_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      string          `json:"payment_date"`
	Reference        string          `json:"reference,omitempty"`
	IsAllocated      bool            `json:"is_allocated"`
	AllocatedAt      *time.Time      `json:"allocated_at,omitempty"`
	SplitFrom        *uuid.UUID      `json:"split_from,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toPaymentResponse(p *ledger.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		RepresentativeID: p.RepresentativeID,
		InvoiceID:        p.InvoiceID,
		Amount:           p.Amount,
		PaymentDate:      p.PaymentDate.Format(time.DateOnly),
		Reference:        p.Reference,
		IsAllocated:      p.IsAllocated,
		AllocatedAt:      p.AllocatedAt,
		SplitFrom:        p.SplitFrom,
		CreatedAt:        p.CreatedAt,
	}
}

type resultResponse struct {
	Success            bool                 `json:"success"`
	Message            string               `json:"message,omitempty"`
	RepresentativeID   uuid.UUID            `json:"representative_id"`
	PaymentID          uuid.UUID            `json:"payment_id"`
	InvoiceID          uuid.UUID            `json:"invoice_id"`
	Allocated          decimal.Decimal      `json:"allocated"`
	RemainderPaymentID *uuid.UUID           `json:"remainder_payment_id,omitempty"`
	Remainder          decimal.Decimal      `json:"remainder"`
	InvoiceStatus      ledger.InvoiceStatus `json:"invoice_status"`
	InvoiceRemaining   decimal.Decimal      `json:"invoice_remaining"`
	CachedDebt         decimal.Decimal      `json:"cached_debt"`
	LineID             uuid.UUID            `json:"line_id"`
}

func toResultResponse(r *allocation.Result) resultResponse {
	return resultResponse{
		Success:            r.Success,
		Message:            r.Message,
		RepresentativeID:   r.RepresentativeID,
		PaymentID:          r.PaymentID,
		InvoiceID:          r.InvoiceID,
		Allocated:          r.Allocated,
		RemainderPaymentID: r.RemainderPaymentID,
		Remainder:          r.Remainder,
		InvoiceStatus:      r.InvoiceStatus,
		InvoiceRemaining:   r.InvoiceRemaining,
		CachedDebt:         r.CachedDebt,
		LineID:             r.LineID,
	}
}

type rejectDTO struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Profile    string      `json:"profile"`
	Parsed     int         `json:"parsed"`
	Recorded   int         `json:"recorded"`
	Allocated  int         `json:"allocated"`
	PaymentIDs []uuid.UUID `json:"payment_ids"`
	Rejects    []rejectDTO `json:"rejects"`
}

func toImportResponse(s *intake.Summary) importResponse {
	resp := importResponse{
		Profile:    s.Profile,
		Parsed:     s.Parsed,
		Recorded:   s.Recorded,
		Allocated:  s.Allocated,
		PaymentIDs: s.PaymentIDs,
		Rejects:    make([]rejectDTO, len(s.Rejects)),
	}

	if resp.PaymentIDs == nil {
		resp.PaymentIDs = []uuid.UUID{}
	}

	for i, r := range s.Rejects {
		resp.Rejects[i] = rejectDTO{Row: r.Row, Reason: r.Reason}
	}

	return resp
}
