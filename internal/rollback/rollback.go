// Package rollback removes a set of invoices (typically one erroneous issue
// date) while keeping allocations, cached debt and the audit trail coherent.
package rollback

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/batch"
	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

var (
	ErrEmptySelector = errors.New("selector needs an issue date or invoice ids")
	ErrNoInvoices    = errors.New("no invoices match the selector")
)

// Selector picks the invoices to roll back. IssueDate and InvoiceIDs narrow
// the set; RepresentativeIDs only restricts it further.
type Selector struct {
	IssueDate         *time.Time
	RepresentativeIDs []uuid.UUID
	InvoiceIDs        []uuid.UUID
}

func (s Selector) filter() ledger.InvoiceFilter {
	return ledger.InvoiceFilter{
		IDs:               s.InvoiceIDs,
		RepresentativeIDs: s.RepresentativeIDs,
		IssueDate:         s.IssueDate,
	}
}

type Request struct {
	Selector
	DryRun bool
	Actor  string
}

// Delta is the effect of the rollback on one representative.
type Delta struct {
	RepresentativeID  uuid.UUID
	Code              string
	InvoiceIDs        []uuid.UUID
	InvoicedRemoved   decimal.Decimal // T
	AllocatedReleased decimal.Decimal // A_T
	PaymentsReleased  int
	CachedDebt        decimal.Decimal
	CurrentDebt       decimal.Decimal // max(0, I - A)
	ProjectedDebt     decimal.Decimal // max(0, (I - T) - (A - A_T))
	DebtChange        decimal.Decimal // ProjectedDebt - CurrentDebt
}

type Failure struct {
	RepresentativeID uuid.UUID
	Reason           string
}

type Result struct {
	Success        bool
	DryRun         bool
	Message        string
	Invoices       int
	TotalRemoved   decimal.Decimal
	TotalReleased  decimal.Decimal
	TotalDebtDelta decimal.Decimal
	Deltas         []Delta
	AuditID        *uuid.UUID
	Failures       []Failure
	Verification   *reconcile.Report
	Duration       time.Duration
}

// Detector confirms consistency after the rollback. *reconcile.Detector
// satisfies it.
type Detector interface {
	Detect(ctx context.Context, scope []uuid.UUID, threshold decimal.Decimal, progress reconcile.Progress) (*reconcile.Report, error)
}

type Options struct {
	Batch          batch.Options
	DriftThreshold decimal.Decimal
	Now            func() time.Time
}

type Engine struct {
	store    ledger.Store
	cache    *cache.Manager
	detector Detector
	opts     Options
}

func New(store ledger.Store, c *cache.Manager, detector Detector, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{store: store, cache: c, detector: detector, opts: opts}
}

// Rollback projects and, unless req.DryRun, applies the removal of every
// invoice the selector matches. Failures of one representative do not stop
// the others; they are reported in Result.Failures.
func (e *Engine) Rollback(ctx context.Context, req Request) (*Result, error) {
	if req.IssueDate == nil && len(req.InvoiceIDs) == 0 {
		return nil, ErrEmptySelector
	}

	start := e.opts.Now()

	deltas, err := e.project(ctx, e.store, req.filter())
	if err != nil {
		return nil, err
	}

	if len(deltas) == 0 {
		return nil, ErrNoInvoices
	}

	res := summarize(deltas)
	res.DryRun = req.DryRun

	if req.DryRun {
		res.Success = true
		res.Message = fmt.Sprintf("dry run: %d invoices across %d representatives would be removed", res.Invoices, len(deltas))
		res.Duration = e.opts.Now().Sub(start)

		return res, nil
	}

	auditID, err := e.audit(ctx, req, deltas)
	if err != nil {
		return nil, err
	}

	res.AuditID = new(auditID)

	var mu sync.Mutex

	err = batch.Run(ctx, deltas, e.opts.Batch, func(ctx context.Context, d Delta) error {
		if err := e.apply(ctx, d, req.Actor); err != nil {
			slog.Error("rolling back representative invoices", "representative_id", d.RepresentativeID, "error", err)

			mu.Lock()
			res.Failures = append(res.Failures, Failure{RepresentativeID: d.RepresentativeID, Reason: err.Error()})
			mu.Unlock()
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.cache.Invalidate(cache.GlobalKeys()...)

	affected := make([]uuid.UUID, len(deltas))
	for i, d := range deltas {
		affected[i] = d.RepresentativeID
	}

	report, err := e.detector.Detect(ctx, affected, e.opts.DriftThreshold, nil)
	if err != nil {
		res.Failures = append(res.Failures, Failure{Reason: fmt.Sprintf("verification: %v", err)})
	} else {
		res.Verification = report
	}

	slices.SortFunc(res.Failures, func(a, b Failure) int {
		return cmp.Compare(a.RepresentativeID.String(), b.RepresentativeID.String())
	})

	res.Success = len(res.Failures) == 0
	res.Duration = e.opts.Now().Sub(start)
	res.Message = fmt.Sprintf("%d invoices across %d representatives removed, %d failures",
		res.Invoices, len(deltas), len(res.Failures))

	slog.Info("invoice rollback finished",
		"audit_id", auditID,
		"invoices", res.Invoices,
		"representatives", len(deltas),
		"failures", len(res.Failures),
		"actor", req.Actor,
	)

	return res, nil
}

// project groups the matching invoices by representative and computes the
// debt each one would carry once they are gone.
func (e *Engine) project(ctx context.Context, r ledger.Reader, filter ledger.InvoiceFilter) ([]Delta, error) {
	balances, err := r.InvoiceBalances(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing invoice balances: %w", err)
	}

	byRep := make(map[uuid.UUID]*Delta)

	var order []uuid.UUID

	for _, b := range balances {
		id := b.Invoice.RepresentativeID

		d, ok := byRep[id]
		if !ok {
			d = &Delta{RepresentativeID: id, InvoicedRemoved: decimal.Zero, AllocatedReleased: decimal.Zero}
			byRep[id] = d
			order = append(order, id)
		}

		d.InvoiceIDs = append(d.InvoiceIDs, b.Invoice.ID)
		d.InvoicedRemoved = d.InvoicedRemoved.Add(b.Invoice.Amount)
		d.AllocatedReleased = d.AllocatedReleased.Add(b.Allocated)
		d.PaymentsReleased += b.Payments
	}

	if len(order) == 0 {
		return nil, nil
	}

	totals, err := r.Totals(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("aggregating totals: %w", err)
	}

	reps, err := r.ListRepresentatives(ctx, ledger.RepresentativeFilter{IDs: order})
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}

	for _, rep := range reps {
		if d, ok := byRep[rep.ID]; ok {
			d.Code = rep.Code
			d.CachedDebt = rep.CachedDebt
		}
	}

	out := make([]Delta, 0, len(order))

	for _, id := range order {
		d := byRep[id]
		t := totals[id]

		d.CurrentDebt = debt.Compute(t.Invoiced, t.Allocated)
		d.ProjectedDebt = debt.Compute(t.Invoiced.Sub(d.InvoicedRemoved), t.Allocated.Sub(d.AllocatedReleased))
		d.DebtChange = d.ProjectedDebt.Sub(d.CurrentDebt)

		out = append(out, *d)
	}

	slices.SortFunc(out, func(a, b Delta) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.RepresentativeID.String(), b.RepresentativeID.String()))
	})

	return out, nil
}

func summarize(deltas []Delta) *Result {
	res := &Result{
		Deltas:         deltas,
		TotalRemoved:   decimal.Zero,
		TotalReleased:  decimal.Zero,
		TotalDebtDelta: decimal.Zero,
	}

	for _, d := range deltas {
		res.Invoices += len(d.InvoiceIDs)
		res.TotalRemoved = res.TotalRemoved.Add(d.InvoicedRemoved)
		res.TotalReleased = res.TotalReleased.Add(d.AllocatedReleased)
		res.TotalDebtDelta = res.TotalDebtDelta.Add(d.DebtChange)
	}

	return res
}

type snapshot struct {
	Invoices        []*ledger.Invoice        `json:"invoices"`
	Payments        []*ledger.Payment        `json:"payments"`
	Representatives []representativeSnapshot `json:"representatives"`
}

type representativeSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	CachedDebt    decimal.Decimal `json:"cached_debt"`
	LedgerDebt    decimal.Decimal `json:"ledger_debt"`
	ProjectedDebt decimal.Decimal `json:"projected_debt"`
}

// audit writes one invoice_rollback record carrying everything the rollback
// is about to remove or release.
func (e *Engine) audit(ctx context.Context, req Request, deltas []Delta) (uuid.UUID, error) {
	rec := &ledger.AuditRecord{Kind: ledger.AuditInvoiceRollback, Actor: req.Actor}

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		if req.IssueDate != nil {
			if err := tx.LockIssueDate(ctx, *req.IssueDate); err != nil {
				return fmt.Errorf("locking issue date: %w", err)
			}
		}

		var before snapshot

		after := make([]representativeSnapshot, 0, len(deltas))

		for _, d := range deltas {
			invoices, err := tx.ListInvoices(ctx, ledger.InvoiceFilter{IDs: d.InvoiceIDs})
			if err != nil {
				return fmt.Errorf("listing invoices: %w", err)
			}

			before.Invoices = append(before.Invoices, invoices...)

			for _, id := range d.InvoiceIDs {
				payments, err := tx.ListPayments(ctx, ledger.PaymentFilter{InvoiceID: new(id)})
				if err != nil {
					return fmt.Errorf("listing payments: %w", err)
				}

				before.Payments = append(before.Payments, payments...)
			}

			before.Representatives = append(before.Representatives, representativeSnapshot{
				ID:         d.RepresentativeID,
				CachedDebt: d.CachedDebt,
				LedgerDebt: d.CurrentDebt,
			})

			after = append(after, representativeSnapshot{
				ID:            d.RepresentativeID,
				CachedDebt:    d.ProjectedDebt,
				LedgerDebt:    d.ProjectedDebt,
				ProjectedDebt: d.ProjectedDebt,
			})
		}

		var err error

		if rec.Before, err = json.Marshal(before); err != nil {
			return fmt.Errorf("encoding pre-state: %w", err)
		}

		if rec.After, err = json.Marshal(after); err != nil {
			return fmt.Errorf("encoding post-state: %w", err)
		}

		return tx.AppendAudit(ctx, rec)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("writing rollback audit: %w", err)
	}

	return rec.ID, nil
}

// apply removes one representative's invoices in a single transaction. The
// cached debt is set from a projection taken under the representative lock.
func (e *Engine) apply(ctx context.Context, d Delta, actor string) error {
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockRepresentative(ctx, d.RepresentativeID); err != nil {
			return fmt.Errorf("locking representative: %w", err)
		}

		for _, invoiceID := range d.InvoiceIDs {
			payments, err := tx.ListPayments(ctx, ledger.PaymentFilter{InvoiceID: new(invoiceID)})
			if err != nil {
				return fmt.Errorf("listing payments: %w", err)
			}

			for _, p := range payments {
				if err := tx.ReleasePayment(ctx, p.ID); err != nil {
					return fmt.Errorf("releasing payment %s: %w", p.ID, err)
				}

				err := tx.AppendAllocationLine(ctx, &ledger.AllocationLine{
					PaymentID:        p.ID,
					InvoiceID:        invoiceID,
					RepresentativeID: d.RepresentativeID,
					Amount:           p.Amount.Neg(),
					Method:           ledger.MethodReversal,
					Actor:            actor,
				})
				if err != nil {
					return fmt.Errorf("appending reversal line: %w", err)
				}
			}

			if err := tx.DeleteInvoice(ctx, invoiceID); err != nil {
				return fmt.Errorf("deleting invoice %s: %w", invoiceID, err)
			}
		}

		proj, err := debt.NewProjector(tx).Project(ctx, d.RepresentativeID)
		if err != nil {
			return err
		}

		return tx.SetCachedDebt(ctx, d.RepresentativeID, proj.LedgerDebt)
	})
	if err != nil {
		return err
	}

	e.cache.Invalidate(cache.RepresentativeKeys(d.RepresentativeID)...)

	return nil
}

// DateGroup is one representative's share of an issue date.
type DateGroup struct {
	RepresentativeID uuid.UUID
	Code             string
	Invoices         int
	Total            decimal.Decimal
	Allocated        decimal.Decimal
}

type DateReport struct {
	IssueDate       time.Time
	Invoices        int
	Total           decimal.Decimal
	Representatives []DateGroup
}

// DateReport lists the invoices issued on day grouped by representative,
// largest total first. It is the usual first step before a rollback.
func (e *Engine) DateReport(ctx context.Context, day time.Time) (*DateReport, error) {
	balances, err := e.store.InvoiceBalances(ctx, ledger.InvoiceFilter{IssueDate: &day})
	if err != nil {
		return nil, fmt.Errorf("listing invoice balances: %w", err)
	}

	out := &DateReport{IssueDate: day, Total: decimal.Zero}
	groups := make(map[uuid.UUID]*DateGroup)

	for _, b := range balances {
		g, ok := groups[b.Invoice.RepresentativeID]
		if !ok {
			g = &DateGroup{RepresentativeID: b.Invoice.RepresentativeID, Total: decimal.Zero, Allocated: decimal.Zero}
			groups[g.RepresentativeID] = g
		}

		g.Invoices++
		g.Total = g.Total.Add(b.Invoice.Amount)
		g.Allocated = g.Allocated.Add(b.Allocated)

		out.Invoices++
		out.Total = out.Total.Add(b.Invoice.Amount)
	}

	if len(groups) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}

	reps, err := e.store.ListRepresentatives(ctx, ledger.RepresentativeFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}

	for _, r := range reps {
		groups[r.ID].Code = r.Code
	}

	for _, g := range groups {
		out.Representatives = append(out.Representatives, *g)
	}

	slices.SortFunc(out.Representatives, func(a, b DateGroup) int {
		return cmp.Or(b.Total.Cmp(a.Total), cmp.Compare(a.Code, b.Code))
	})

	return out, nil
}
