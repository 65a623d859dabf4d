package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

type runResponse struct {
	ID           uuid.UUID        `json:"id"`
	Mode         ledger.Mode      `json:"mode"`
	Scope        []uuid.UUID      `json:"scope"`
	Threshold    decimal.Decimal  `json:"threshold"`
	Status       ledger.RunStatus `json:"status"`
	TotalCached  decimal.Decimal  `json:"total_cached"`
	TotalLedger  decimal.Decimal  `json:"total_ledger"`
	TotalDrift   decimal.Decimal  `json:"total_drift"`
	DriftRatio   decimal.Decimal  `json:"drift_ratio"`
	AnomalyCount int              `json:"anomaly_count"`
	Risk         ledger.RiskLevel `json:"risk"`
	Applied      int              `json:"applied"`
	Failed       int              `json:"failed"`
	Skipped      int              `json:"skipped"`
	Actor        string           `json:"actor"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	HeartbeatAt  *time.Time       `json:"heartbeat_at,omitempty"`
	// CancelRequested is set while the owning process winds the run down.
	CancelRequested bool `json:"cancel_requested"`
}

func toRunResponse(r *ledger.Run) runResponse {
	scope := r.Scope
	if scope == nil {
		scope = []uuid.UUID{}
	}

	return runResponse{
		ID:           r.ID,
		Mode:         r.Mode,
		Scope:        scope,
		Threshold:    r.Threshold,
		Status:       r.Status,
		TotalCached:  r.TotalCached,
		TotalLedger:  r.TotalLedger,
		TotalDrift:   r.TotalDrift,
		DriftRatio:   r.DriftRatio,
		AnomalyCount: r.AnomalyCount,
		Risk:         r.Risk,
		Applied:      r.Applied,
		Failed:       r.Failed,
		Skipped:      r.Skipped,
		Actor:        r.Actor,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		HeartbeatAt:  r.HeartbeatAt,

		CancelRequested: r.CancelRequested,
	}
}

type actionResponse struct {
	ID         uuid.UUID           `json:"id"`
	Seq        int                 `json:"seq"`
	Type       ledger.ActionType   `json:"type"`
	TargetType ledger.TargetType   `json:"target_type"`
	TargetID   uuid.UUID           `json:"target_id"`
	Current    decimal.Decimal     `json:"current"`
	Expected   decimal.Decimal     `json:"expected"`
	Adjustment decimal.Decimal     `json:"adjustment"`
	Confidence int                 `json:"confidence"`
	Status     ledger.ActionStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	AppliedAt  *time.Time          `json:"applied_at,omitempty"`
}

func toActionList(actions []*ledger.RepairAction) []actionResponse {
	resp := make([]actionResponse, len(actions))

	for i, a := range actions {
		resp[i] = actionResponse{
			ID:         a.ID,
			Seq:        a.Seq,
			Type:       a.Type,
			TargetType: a.TargetType,
			TargetID:   a.TargetID,
			Current:    a.Current,
			Expected:   a.Expected,
			Adjustment: a.Adjustment,
			Confidence: a.Confidence,
			Status:     a.Status,
			Reason:     a.Reason,
			AppliedAt:  a.AppliedAt,
		}
	}

	return resp
}

type detailResponse struct {
	Run     runResponse      `json:"run"`
	Actions []actionResponse `json:"actions"`
}

func toDetailResponse(d *reconcile.RunDetail) detailResponse {
	return detailResponse{Run: toRunResponse(d.Run), Actions: toActionList(d.Actions)}
}

type anomalyDTO struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Code             string          `json:"code"`
	CachedDebt       decimal.Decimal `json:"cached_debt"`
	LedgerDebt       decimal.Decimal `json:"ledger_debt"`
	Drift            decimal.Decimal `json:"drift"`
	Ratio            decimal.Decimal `json:"ratio"`
}

type statusDriftDTO struct {
	InvoiceID uuid.UUID            `json:"invoice_id"`
	Number    string               `json:"number"`
	Stored    ledger.InvoiceStatus `json:"stored"`
	Derived   ledger.InvoiceStatus `json:"derived"`
}

type orphanDTO struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

type reportDTO struct {
	Scope       int              `json:"scope"`
	TotalDrift  decimal.Decimal  `json:"total_drift"`
	DriftRatio  decimal.Decimal  `json:"drift_ratio"`
	Status      ledger.RunStatus `json:"status"`
	Anomalies   []anomalyDTO     `json:"anomalies"`
	StatusDrift []statusDriftDTO `json:"status_drift"`
	Orphans     []orphanDTO      `json:"orphans"`
}

func toReportDTO(r *reconcile.Report) *reportDTO {
	if r == nil {
		return nil
	}

	dto := &reportDTO{
		Scope:       r.Scope,
		TotalDrift:  r.TotalDrift,
		DriftRatio:  r.DriftRatio,
		Status:      r.Status,
		Anomalies:   make([]anomalyDTO, len(r.Anomalies)),
		StatusDrift: make([]statusDriftDTO, len(r.StatusDrift)),
		Orphans:     make([]orphanDTO, len(r.Orphans)),
	}

	for i, a := range r.Anomalies {
		dto.Anomalies[i] = anomalyDTO(a)
	}

	for i, s := range r.StatusDrift {
		dto.StatusDrift[i] = statusDriftDTO{InvoiceID: s.InvoiceID, Number: s.Number, Stored: s.Stored, Derived: s.Derived}
	}

	for i, o := range r.Orphans {
		dto.Orphans[i] = orphanDTO{PaymentID: o.Payment.ID, Reason: o.Reason}
	}

	return dto
}

type manualReviewDTO struct {
	RepresentativeID uuid.UUID       `json:"representative_id"`
	Code             string          `json:"code"`
	CachedDebt       decimal.Decimal `json:"cached_debt"`
	LedgerDebt       decimal.Decimal `json:"ledger_debt"`
	Adjustment       decimal.Decimal `json:"adjustment"`
	Reason           string          `json:"reason"`
}

type planDTO struct {
	Actions         []actionResponse  `json:"actions"`
	ManualReview    []manualReviewDTO `json:"manual_review"`
	TotalAdjustment decimal.Decimal   `json:"total_adjustment"`
	Affected        int               `json:"affected"`
	Risk            ledger.RiskLevel  `json:"risk"`
}

func toPlanDTO(p *reconcile.Plan) *planDTO {
	if p == nil {
		return nil
	}

	dto := &planDTO{
		Actions:         toActionList(p.Actions),
		ManualReview:    make([]manualReviewDTO, len(p.ManualReview)),
		TotalAdjustment: p.TotalAdjustment,
		Affected:        p.Affected,
		Risk:            p.Risk,
	}

	for i, m := range p.ManualReview {
		dto.ManualReview[i] = manualReviewDTO(m)
	}

	return dto
}

type executionDTO struct {
	Applied         int             `json:"applied"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Cancelled       int             `json:"cancelled"`
	TotalAdjustment decimal.Decimal `json:"total_adjustment"`
	DurationMillis  int64           `json:"duration_ms"`
}

type outcomeResponse struct {
	Run       runResponse   `json:"run"`
	Report    *reportDTO    `json:"report,omitempty"`
	Plan      *planDTO      `json:"plan,omitempty"`
	Execution *executionDTO `json:"execution,omitempty"`
}

func toOutcomeResponse(o *reconcile.Outcome) outcomeResponse {
	resp := outcomeResponse{
		Run:    toRunResponse(o.Run),
		Report: toReportDTO(o.Report),
		Plan:   toPlanDTO(o.Plan),
	}

	if e := o.Execution; e != nil {
		resp.Execution = &executionDTO{
			Applied:         e.Applied,
			Failed:          e.Failed,
			Skipped:         e.Skipped,
			Cancelled:       e.Cancelled,
			TotalAdjustment: e.TotalAdjustment,
			DurationMillis:  e.Duration.Milliseconds(),
		}
	}

	return resp
}

// PresentJob renders a finished reconciliation job result.
func PresentJob(result any) any {
	if o, ok := result.(*reconcile.Outcome); ok && o != nil && o.Run != nil {
		return toOutcomeResponse(o)
	}

	return result
}
