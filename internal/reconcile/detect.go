// Package reconcile detects drift between cached and ledger debt, plans
// bounded repairs and applies them.
package reconcile

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/batch"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// Progress receives batch progress and is polled for cancellation.
// *job.Progress satisfies it.
type Progress interface {
	Batch(current, total int)
	Cancelled() bool
}

// Anomaly is a representative whose cached debt drifted past the threshold.
type Anomaly struct {
	RepresentativeID uuid.UUID
	Code             string
	CachedDebt       decimal.Decimal
	LedgerDebt       decimal.Decimal
	Drift            decimal.Decimal // LedgerDebt - CachedDebt
	Ratio            decimal.Decimal // |Drift| / CachedDebt
}

func (a Anomaly) AbsDrift() decimal.Decimal { return a.Drift.Abs() }

// StatusDrift is an invoice whose stored status disagrees with its
// allocations.
type StatusDrift struct {
	InvoiceID        uuid.UUID
	RepresentativeID uuid.UUID
	Number           string
	Amount           decimal.Decimal
	Allocated        decimal.Decimal
	Stored           ledger.InvoiceStatus
	Derived          ledger.InvoiceStatus
}

type Report struct {
	Scope       int
	Threshold   decimal.Decimal
	TotalCached decimal.Decimal
	TotalLedger decimal.Decimal
	TotalDrift  decimal.Decimal // Sum of absolute drifts
	DriftRatio  decimal.Decimal
	Status      ledger.RunStatus
	Anomalies   []Anomaly
	StatusDrift []StatusDrift
	Orphans     []ledger.OrphanedPayment
}

// SafeRatio divides n by d without failing on a zero denominator: 0/0 is 0
// and n/0 is 1.
func SafeRatio(n, d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		if n.IsZero() {
			return decimal.Zero
		}

		return decimal.NewFromInt(1)
	}

	return n.Div(d)
}

// IsAnomaly reports whether cached and ledger debt disagree by more than
// threshold relative to the cached value. A zero cached debt with any ledger
// debt is always an anomaly.
func IsAnomaly(cached, ledgerDebt, threshold decimal.Decimal) bool {
	drift := ledgerDebt.Sub(cached).Abs()
	if drift.IsZero() {
		return false
	}

	if cached.IsZero() {
		return true
	}

	return drift.GreaterThan(threshold.Mul(cached))
}

type Detector struct {
	store ledger.Reader
	batch batch.Options
}

func NewDetector(store ledger.Reader, opts batch.Options) *Detector {
	return &Detector{store: store, batch: opts}
}

// Detect compares cached and ledger debt for every representative in scope,
// one aggregate query per batch. An empty scope means every active
// representative. Unknown ids in scope are ignored.
func (d *Detector) Detect(ctx context.Context, scope []uuid.UUID, threshold decimal.Decimal, progress Progress) (*Report, error) {
	filter := ledger.RepresentativeFilter{IDs: scope, ActiveOnly: len(scope) == 0}

	reps, err := d.store.ListRepresentatives(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}

	report := &Report{
		Scope:       len(reps),
		Threshold:   threshold,
		TotalCached: decimal.Zero,
		TotalLedger: decimal.Zero,
		TotalDrift:  decimal.Zero,
	}

	opts := d.batch
	if progress != nil {
		opts.OnBatch = progress.Batch
		opts.Cancelled = progress.Cancelled
	}

	projector := debt.NewProjector(d.store)

	err = batch.Chunks(ctx, reps, opts, func(ctx context.Context, chunk []*ledger.Representative) error {
		ids := make([]uuid.UUID, len(chunk))
		for i, r := range chunk {
			ids[i] = r.ID
		}

		projections, err := projector.ProjectMany(ctx, ids)
		if err != nil {
			return err
		}

		for _, r := range chunk {
			ledgerDebt := projections[r.ID].LedgerDebt
			drift := ledgerDebt.Sub(r.CachedDebt)

			report.TotalCached = report.TotalCached.Add(r.CachedDebt)
			report.TotalLedger = report.TotalLedger.Add(ledgerDebt)
			report.TotalDrift = report.TotalDrift.Add(drift.Abs())

			if IsAnomaly(r.CachedDebt, ledgerDebt, threshold) {
				report.Anomalies = append(report.Anomalies, Anomaly{
					RepresentativeID: r.ID,
					Code:             r.Code,
					CachedDebt:       r.CachedDebt,
					LedgerDebt:       ledgerDebt,
					Drift:            drift,
					Ratio:            SafeRatio(drift.Abs(), r.CachedDebt),
				})
			}
		}

		balances, err := d.store.InvoiceBalances(ctx, ledger.InvoiceFilter{RepresentativeIDs: ids})
		if err != nil {
			return fmt.Errorf("listing invoice balances: %w", err)
		}

		for _, b := range balances {
			if derived := b.DerivedStatus(); derived != b.Invoice.Status {
				report.StatusDrift = append(report.StatusDrift, StatusDrift{
					InvoiceID:        b.Invoice.ID,
					RepresentativeID: b.Invoice.RepresentativeID,
					Number:           b.Invoice.Number,
					Amount:           b.Invoice.Amount,
					Allocated:        b.Allocated,
					Stored:           b.Invoice.Status,
					Derived:          derived,
				})
			}
		}

		orphans, err := d.store.OrphanedPayments(ctx, ids)
		if err != nil {
			return fmt.Errorf("listing orphaned payments: %w", err)
		}

		report.Orphans = append(report.Orphans, orphans...)

		return nil
	})
	if err != nil {
		return report, err
	}

	slices.SortFunc(report.Anomalies, func(a, b Anomaly) int {
		return cmp.Or(
			b.AbsDrift().Cmp(a.AbsDrift()),
			bytes.Compare(a.RepresentativeID[:], b.RepresentativeID[:]),
		)
	})

	report.DriftRatio = SafeRatio(report.TotalDrift, report.TotalCached)
	report.Status = ledger.RunOK

	if len(report.Anomalies) > 0 || len(report.StatusDrift) > 0 || report.DriftRatio.GreaterThan(threshold) {
		report.Status = ledger.RunWarn
	}

	return report, nil
}
