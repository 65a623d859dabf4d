package reconcile

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

const (
	ConfidenceLedger  = 90
	ConfidenceCache   = 95
	ConfidenceBalance = 90
)

var (
	riskCriticalAmount = decimal.NewFromInt(100_000)
	riskHighAmount     = decimal.NewFromInt(50_000)
	riskMediumAmount   = decimal.NewFromInt(10_000)
)

// ManualReview is an anomaly the planner refused to correct automatically.
type ManualReview struct {
	RepresentativeID uuid.UUID
	Code             string
	CachedDebt       decimal.Decimal
	LedgerDebt       decimal.Decimal
	Adjustment       decimal.Decimal
	Reason           string
}

type Plan struct {
	Actions         []*ledger.RepairAction
	ManualReview    []ManualReview
	TotalAdjustment decimal.Decimal // Sum of |adjustment| over surviving actions
	Affected        int
	Risk            ledger.RiskLevel
}

type Planner struct {
	maxAdjustment decimal.Decimal
}

func NewPlanner(maxAdjustment decimal.Decimal) *Planner {
	return &Planner{maxAdjustment: maxAdjustment}
}

// Plan turns a detection report into ordered repair actions. Anomalies
// whose correction exceeds the ceiling get no actions at all and are listed
// for manual review instead.
func (p *Planner) Plan(report *Report, mode ledger.Mode) *Plan {
	plan := &Plan{TotalAdjustment: decimal.Zero}
	affected := make(map[uuid.UUID]struct{})

	add := func(a *ledger.RepairAction) {
		a.Seq = len(plan.Actions) + 1
		a.Status = ledger.ActionPending
		plan.Actions = append(plan.Actions, a)
		plan.TotalAdjustment = plan.TotalAdjustment.Add(a.Adjustment.Abs())
	}

	for _, an := range report.Anomalies {
		adjustment := an.LedgerDebt.Sub(an.CachedDebt)

		if adjustment.Abs().GreaterThan(p.maxAdjustment) {
			plan.ManualReview = append(plan.ManualReview, ManualReview{
				RepresentativeID: an.RepresentativeID,
				Code:             an.Code,
				CachedDebt:       an.CachedDebt,
				LedgerDebt:       an.LedgerDebt,
				Adjustment:       adjustment,
				Reason:           fmt.Sprintf("adjustment %s exceeds ceiling %s", adjustment.StringFixed(2), p.maxAdjustment.StringFixed(2)),
			})

			continue
		}

		affected[an.RepresentativeID] = struct{}{}

		add(&ledger.RepairAction{
			Type:       ledger.ActionAdjustDebt,
			TargetType: ledger.TargetRepresentative,
			TargetID:   an.RepresentativeID,
			Current:    an.CachedDebt,
			Expected:   an.LedgerDebt,
			Adjustment: adjustment,
			Confidence: ConfidenceLedger,
			Reason:     fmt.Sprintf("drift correction: ledger=%s cached=%s", an.LedgerDebt.StringFixed(2), an.CachedDebt.StringFixed(2)),
		})

		add(&ledger.RepairAction{
			Type:       ledger.ActionSyncCache,
			TargetType: ledger.TargetRepresentative,
			TargetID:   an.RepresentativeID,
			Current:    an.CachedDebt,
			Expected:   an.LedgerDebt,
			Adjustment: decimal.Zero,
			Confidence: ConfidenceCache,
			Reason:     "cache synchronization after debt adjustment",
		})
	}

	for _, sd := range report.StatusDrift {
		affected[sd.RepresentativeID] = struct{}{}

		add(&ledger.RepairAction{
			Type:       ledger.ActionRecalculateBalance,
			TargetType: ledger.TargetInvoice,
			TargetID:   sd.InvoiceID,
			Current:    sd.Allocated,
			Expected:   sd.Allocated,
			Adjustment: decimal.Zero,
			Confidence: ConfidenceBalance,
			Reason:     fmt.Sprintf("invoice %s status %s, allocations say %s", sd.Number, sd.Stored, sd.Derived),
		})
	}

	plan.Affected = len(affected)
	plan.Risk = ClassifyRisk(plan.TotalAdjustment, len(plan.Actions), scale(mode, report.Scope))

	return plan
}

// scale widens the action-count thresholds of enforce runs by one step per
// hundred representatives in scope.
func scale(mode ledger.Mode, scopeSize int) int {
	if mode != ledger.ModeEnforce || scopeSize <= 100 {
		return 1
	}

	return (scopeSize + 99) / 100
}

// ClassifyRisk rates a plan by total adjustment and action count. The count
// thresholds are multiplied by factor.
func ClassifyRisk(total decimal.Decimal, actions, factor int) ledger.RiskLevel {
	factor = max(factor, 1)

	switch {
	case total.GreaterThan(riskCriticalAmount) || actions > 20*factor:
		return ledger.RiskCritical
	case total.GreaterThan(riskHighAmount) || actions > 10*factor:
		return ledger.RiskHigh
	case total.GreaterThan(riskMediumAmount) || actions > 5*factor:
		return ledger.RiskMedium
	default:
		return ledger.RiskLow
	}
}
