package rollback

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/rollback"
)

type deltaDTO struct {
	RepresentativeID  uuid.UUID       `json:"representative_id"`
	Code              string          `json:"code"`
	InvoiceIDs        []uuid.UUID     `json:"invoice_ids"`
	InvoicedRemoved   decimal.Decimal `json:"invoiced_removed"`
	AllocatedReleased decimal.Decimal `json:"allocated_released"`
	PaymentsReleased  int             `json:"payments_released"`
	CachedDebt        decimal.Decimal `json:"cached_debt"`
	CurrentDebt       decimal.Decimal `json:"current_debt"`
	ProjectedDebt     decimal.Decimal `json:"projected_debt"`
	DebtChange        decimal.Decimal `json:"debt_change"`
}

type failureDTO struct {
	RepresentativeID uuid.UUID `json:"representative_id"`
	Reason           string    `json:"reason"`
}

type verificationDTO struct {
	Status     ledger.RunStatus `json:"status"`
	Anomalies  int              `json:"anomalies"`
	TotalDrift decimal.Decimal  `json:"total_drift"`
	DriftRatio decimal.Decimal  `json:"drift_ratio"`
}

type resultResponse struct {
	Success        bool             `json:"success"`
	DryRun         bool             `json:"dry_run"`
	Message        string           `json:"message"`
	Invoices       int              `json:"invoices"`
	TotalRemoved   decimal.Decimal  `json:"total_removed"`
	TotalReleased  decimal.Decimal  `json:"total_released"`
	TotalDebtDelta decimal.Decimal  `json:"total_debt_delta"`
	Deltas         []deltaDTO       `json:"deltas"`
	AuditID        *uuid.UUID       `json:"audit_id,omitempty"`
	Failures       []failureDTO     `json:"failures"`
	Verification   *verificationDTO `json:"verification,omitempty"`
	DurationMillis int64            `json:"duration_ms"`
}

func toResultResponse(res *rollback.Result) resultResponse {
	resp := resultResponse{
		Success:        res.Success,
		DryRun:         res.DryRun,
		Message:        res.Message,
		Invoices:       res.Invoices,
		TotalRemoved:   res.TotalRemoved,
		TotalReleased:  res.TotalReleased,
		TotalDebtDelta: res.TotalDebtDelta,
		Deltas:         make([]deltaDTO, len(res.Deltas)),
		AuditID:        res.AuditID,
		Failures:       make([]failureDTO, len(res.Failures)),
		DurationMillis: res.Duration.Milliseconds(),
	}

	for i, d := range res.Deltas {
		resp.Deltas[i] = deltaDTO(d)
	}

	for i, f := range res.Failures {
		resp.Failures[i] = failureDTO(f)
	}

	if v := res.Verification; v != nil {
		resp.Verification = &verificationDTO{
			Status:     v.Status,
			Anomalies:  len(v.Anomalies),
			TotalDrift: v.TotalDrift,
			DriftRatio: v.DriftRatio,
		}
	}

	return resp
}

type dateGroupDTO struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Code             string          `json:"code"`
	Invoices         int             `json:"invoices"`
	Total            decimal.Decimal `json:"total"`
	Allocated        decimal.Decimal `json:"allocated"`
}

type dateReportResponse struct {
	IssueDate       string          `json:"issue_date"`
	Invoices        int             `json:"invoices"`
	Total           decimal.Decimal `json:"total"`
	Representatives []dateGroupDTO  `json:"representatives"`
}

func toDateReportResponse(r *rollback.DateReport) dateReportResponse {
	resp := dateReportResponse{
		IssueDate:       r.IssueDate.Format(dateLayout),
		Invoices:        r.Invoices,
		Total:           r.Total,
		Representatives: make([]dateGroupDTO, len(r.Representatives)),
	}

	for i, g := range r.Representatives {
		resp.Representatives[i] = dateGroupDTO(g)
	}

	return resp
}
