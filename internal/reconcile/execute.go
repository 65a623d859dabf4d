package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

var errCeilingExceeded = errors.New("adjustment exceeds ceiling")

// Refresher repopulates a representative's cached debt view.
// *debt.Query satisfies it.
type Refresher interface {
	Debt(ctx context.Context, id uuid.UUID) (*debt.View, error)
}

type ExecutorOptions struct {
	ConfidenceThreshold int
	MaxAdjustment       decimal.Decimal
	Now                 func() time.Time
}

type ActionResult struct {
	ActionID   uuid.UUID
	Seq        int
	Type       ledger.ActionType
	TargetID   uuid.UUID
	Status     ledger.ActionStatus
	Adjustment decimal.Decimal
	Reason     string
}

type Execution struct {
	Applied         int
	Failed          int
	Skipped         int
	Cancelled       int
	TotalAdjustment decimal.Decimal
	Duration        time.Duration
	Results         []ActionResult
}

func (e *Execution) Success() bool { return e.Failed == 0 }

type Executor struct {
	store     ledger.Store
	cache     *cache.Manager
	refresher Refresher
	opts      ExecutorOptions
}

func NewExecutor(store ledger.Store, c *cache.Manager, refresher Refresher, opts ExecutorOptions) *Executor {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Executor{store: store, cache: c, refresher: refresher, opts: opts}
}

// Execute applies actions in order, each in its own transaction. A failing
// action is recorded and the next one runs. cancelled is polled before every
// action; once it reports true the remaining actions are marked cancelled.
// The returned error is reserved for failures to record action outcomes.
func (e *Executor) Execute(ctx context.Context, run *ledger.Run, actions []*ledger.RepairAction, cancelled func() bool) (*Execution, error) {
	start := time.Now()
	out := &Execution{TotalAdjustment: decimal.Zero}

	for i, a := range actions {
		if cancelled != nil && cancelled() {
			for _, rest := range actions[i:] {
				rest.Status = ledger.ActionCancelled
				rest.Reason = "run cancelled"

				if err := e.record(ctx, rest); err != nil {
					return out, err
				}

				out.Cancelled++
				out.Results = append(out.Results, resultOf(rest))
			}

			break
		}

		switch {
		case a.Confidence < e.opts.ConfidenceThreshold:
			a.Status = ledger.ActionSkipped
			a.Reason = fmt.Sprintf("confidence %d below threshold %d", a.Confidence, e.opts.ConfidenceThreshold)

			if err := e.record(ctx, a); err != nil {
				return out, err
			}

			out.Skipped++
		default:
			if err := e.apply(ctx, run, a); err != nil {
				a.Status = ledger.ActionFailed
				a.Reason = err.Error()
				a.AppliedAt = nil

				slog.Warn("repair action failed",
					"run_id", run.ID,
					"action", a.Type,
					"target_id", a.TargetID,
					"error", err,
				)

				if err := e.record(ctx, a); err != nil {
					return out, err
				}

				out.Failed++

				break
			}

			out.Applied++
			out.TotalAdjustment = out.TotalAdjustment.Add(a.Adjustment.Abs())
		}

		out.Results = append(out.Results, resultOf(a))
	}

	out.Duration = time.Since(start)

	return out, nil
}

func resultOf(a *ledger.RepairAction) ActionResult {
	return ActionResult{
		ActionID:   a.ID,
		Seq:        a.Seq,
		Type:       a.Type,
		TargetID:   a.TargetID,
		Status:     a.Status,
		Adjustment: a.Adjustment,
		Reason:     a.Reason,
	}
}

func (e *Executor) record(ctx context.Context, a *ledger.RepairAction) error {
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateAction(ctx, a) })
	if err != nil {
		return fmt.Errorf("recording action %d: %w", a.Seq, err)
	}

	return nil
}

func (e *Executor) apply(ctx context.Context, run *ledger.Run, a *ledger.RepairAction) error {
	switch a.Type {
	case ledger.ActionAdjustDebt:
		return e.adjustDebt(ctx, run, a)
	case ledger.ActionSyncCache:
		return e.syncCache(ctx, a)
	case ledger.ActionRecalculateBalance:
		return e.recalculateBalance(ctx, a)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

type debtState struct {
	CachedDebt     decimal.Decimal `json:"cached_debt"`
	LedgerDebt     decimal.Decimal `json:"ledger_debt"`
	TotalInvoiced  decimal.Decimal `json:"total_invoiced"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
}

// adjustDebt re-projects under the representative lock so that an
// allocation committed after detection is not overwritten.
func (e *Executor) adjustDebt(ctx context.Context, run *ledger.Run, a *ledger.RepairAction) error {
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		rep, err := tx.LockRepresentative(ctx, a.TargetID)
		if err != nil {
			return fmt.Errorf("locking representative: %w", err)
		}

		proj, err := debt.NewProjector(tx).Project(ctx, rep.ID)
		if err != nil {
			return err
		}

		adjustment := proj.LedgerDebt.Sub(rep.CachedDebt)
		if adjustment.Abs().GreaterThan(e.opts.MaxAdjustment) {
			return fmt.Errorf("fresh adjustment %s: %w", adjustment.StringFixed(2), errCeilingExceeded)
		}

		if err := tx.SetCachedDebt(ctx, rep.ID, proj.LedgerDebt); err != nil {
			return fmt.Errorf("setting cached debt: %w", err)
		}

		before, err := json.Marshal(debtState{
			CachedDebt:     rep.CachedDebt,
			LedgerDebt:     proj.LedgerDebt,
			TotalInvoiced:  proj.TotalInvoiced,
			TotalAllocated: proj.TotalAllocated,
		})
		if err != nil {
			return err
		}

		after, err := json.Marshal(debtState{
			CachedDebt:     proj.LedgerDebt,
			LedgerDebt:     proj.LedgerDebt,
			TotalInvoiced:  proj.TotalInvoiced,
			TotalAllocated: proj.TotalAllocated,
		})
		if err != nil {
			return err
		}

		if err := tx.AppendAudit(ctx, &ledger.AuditRecord{
			Kind:             ledger.AuditDebtAdjustment,
			RepresentativeID: new(rep.ID),
			RunID:            new(run.ID),
			Actor:            run.Actor,
			Before:           before,
			After:            after,
		}); err != nil {
			return fmt.Errorf("appending audit record: %w", err)
		}

		a.Current = rep.CachedDebt
		a.Expected = proj.LedgerDebt
		a.Adjustment = adjustment
		a.Status = ledger.ActionApplied
		a.AppliedAt = new(e.opts.Now())

		return tx.UpdateAction(ctx, a)
	})
	if err != nil {
		return err
	}

	e.cache.Invalidate(append(cache.RepresentativeKeys(a.TargetID), cache.GlobalKeys()...)...)

	return nil
}

func (e *Executor) syncCache(ctx context.Context, a *ledger.RepairAction) error {
	e.cache.Invalidate(cache.RepresentativeKeys(a.TargetID)...)

	view, err := e.refresher.Debt(ctx, a.TargetID)
	if err != nil {
		return fmt.Errorf("refreshing debt view: %w", err)
	}

	a.Expected = view.LedgerDebt
	a.Status = ledger.ActionApplied
	a.AppliedAt = new(e.opts.Now())

	return e.record(ctx, a)
}

func (e *Executor) recalculateBalance(ctx context.Context, a *ledger.RepairAction) error {
	var repID uuid.UUID

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		inv, err := tx.GetInvoice(ctx, a.TargetID)
		if err != nil {
			return fmt.Errorf("getting invoice: %w", err)
		}

		repID = inv.RepresentativeID

		if _, err := tx.LockRepresentative(ctx, repID); err != nil {
			return fmt.Errorf("locking representative: %w", err)
		}

		balances, err := tx.InvoiceBalances(ctx, ledger.InvoiceFilter{IDs: []uuid.UUID{inv.ID}})
		if err != nil {
			return fmt.Errorf("getting invoice balance: %w", err)
		}

		if len(balances) == 0 {
			return fmt.Errorf("invoice %s: %w", inv.ID, ledger.ErrNotFound)
		}

		b := balances[0]

		if status := b.DerivedStatus(); status != b.Invoice.Status {
			if err := tx.UpdateInvoiceStatus(ctx, inv.ID, status); err != nil {
				return fmt.Errorf("updating invoice status: %w", err)
			}
		}

		a.Expected = b.Allocated
		a.Status = ledger.ActionApplied
		a.AppliedAt = new(e.opts.Now())

		return tx.UpdateAction(ctx, a)
	})
	if err != nil {
		return err
	}

	e.cache.Invalidate(cache.RepresentativeKeys(repID)...)

	return nil
}
