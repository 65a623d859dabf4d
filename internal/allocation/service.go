package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type Options struct {
	// CascadeGlobal also drops the global summary keys after every write.
	CascadeGlobal bool
	Now           func() time.Time
}

type Service struct {
	store ledger.Store
	cache Cache
	opts  Options
}

func NewService(store ledger.Store, c Cache, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{store: store, cache: c, opts: opts}
}

// AutoAllocate allocates an unallocated payment to the representative's
// outstanding invoices in FIFO order.
func (s *Service) AutoAllocate(ctx context.Context, paymentID uuid.UUID, actor string) (*Result, error) {
	var res *Result

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		rep, p, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		balances, err := tx.InvoiceBalances(ctx, ledger.InvoiceFilter{
			RepresentativeIDs: []uuid.UUID{rep.ID},
			Statuses:          ledger.OutstandingStatuses,
		})
		if err != nil {
			return fmt.Errorf("listing outstanding invoices: %w", err)
		}

		target, ok := SelectInvoice(balances, p.Amount)
		if !ok {
			return fmt.Errorf("representative %s: %w", rep.Code, ErrNoEligibleInvoice)
		}

		amount := decimal.Min(p.Amount, target.Remaining())

		res, err = s.apply(ctx, tx, rep, p, target, amount, ledger.MethodAuto, actor)

		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(res.RepresentativeID)

	slog.Info("payment allocated",
		"payment_id", res.PaymentID,
		"invoice_id", res.InvoiceID,
		"amount", res.Allocated,
		"method", ledger.MethodAuto,
	)

	return res, nil
}

// ManualAllocate allocates params.Amount of a payment to a chosen invoice.
func (s *Service) ManualAllocate(ctx context.Context, params ManualParams) (*Result, error) {
	if !ledger.ValidAmount(params.Amount) {
		return nil, fmt.Errorf("amount %s: %w", params.Amount, ErrInvalidAmount)
	}

	var res *Result

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		rep, p, err := lockPayment(ctx, tx, params.PaymentID)
		if err != nil {
			return err
		}

		balances, err := tx.InvoiceBalances(ctx, ledger.InvoiceFilter{IDs: []uuid.UUID{params.InvoiceID}})
		if err != nil {
			return fmt.Errorf("getting invoice balance: %w", err)
		}

		if len(balances) == 0 {
			return fmt.Errorf("invoice %s: %w", params.InvoiceID, ErrNotFound)
		}

		target := balances[0]

		if target.Invoice.RepresentativeID != rep.ID {
			return fmt.Errorf("invoice %s: %w", target.Invoice.Number, ErrRepresentativeMismatch)
		}

		if params.Amount.GreaterThan(p.Amount) {
			return fmt.Errorf("amount %s exceeds payment %s: %w", params.Amount, p.Amount, ErrInvalidAmount)
		}

		if params.Amount.GreaterThan(target.Remaining()) {
			return fmt.Errorf("amount %s exceeds invoice remaining %s: %w", params.Amount, target.Remaining(), ErrInvalidAmount)
		}

		res, err = s.apply(ctx, tx, rep, p, target, params.Amount, ledger.MethodManual, params.Actor)

		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(res.RepresentativeID)

	slog.Info("payment allocated",
		"payment_id", res.PaymentID,
		"invoice_id", res.InvoiceID,
		"amount", res.Allocated,
		"method", ledger.MethodManual,
		"actor", params.Actor,
	)

	return res, nil
}

// lockPayment takes the representative lock before the payment lock, the
// order every writer follows.
func lockPayment(ctx context.Context, tx ledger.Tx, paymentID uuid.UUID) (*ledger.Representative, *ledger.Payment, error) {
	p, err := tx.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting payment: %w", err)
	}

	rep, err := tx.LockRepresentative(ctx, p.RepresentativeID)
	if err != nil {
		return nil, nil, fmt.Errorf("locking representative: %w", err)
	}

	p, err = tx.LockPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("locking payment: %w", err)
	}

	if p.IsAllocated {
		return nil, nil, fmt.Errorf("payment %s: %w", p.ID, ErrAlreadyAllocated)
	}

	return rep, p, nil
}

// apply writes one allocation: the optional remainder payment, the allocated
// payment, the invoice status, the audit line and the cached debt.
func (s *Service) apply(
	ctx context.Context,
	tx ledger.Tx,
	rep *ledger.Representative,
	p *ledger.Payment,
	target ledger.InvoiceBalance,
	amount decimal.Decimal,
	method ledger.Method,
	actor string,
) (*Result, error) {
	now := s.opts.Now()
	inv := target.Invoice

	res := &Result{
		Success:          true,
		RepresentativeID: rep.ID,
		PaymentID:        p.ID,
		InvoiceID:        inv.ID,
		Allocated:        amount,
		Remainder:        p.Amount.Sub(amount),
	}

	if res.Remainder.IsPositive() {
		rest := &ledger.Payment{
			RepresentativeID: rep.ID,
			Amount:           res.Remainder,
			PaymentDate:      p.PaymentDate,
			Reference:        p.Reference,
			SplitFrom:        new(p.ID),
		}

		if err := tx.CreatePayment(ctx, rest); err != nil {
			return nil, fmt.Errorf("creating remainder payment: %w", err)
		}

		res.RemainderPaymentID = new(rest.ID)
	}

	if err := tx.MarkPaymentAllocated(ctx, p.ID, inv.ID, amount, now); err != nil {
		return nil, fmt.Errorf("marking payment allocated: %w", err)
	}

	allocated := target.Allocated.Add(amount)
	res.InvoiceStatus = ledger.NextStatus(inv.Status, inv.Amount, allocated)
	res.InvoiceRemaining = inv.Amount.Sub(allocated)

	if res.InvoiceStatus != inv.Status {
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, res.InvoiceStatus); err != nil {
			return nil, fmt.Errorf("updating invoice status: %w", err)
		}
	}

	line := &ledger.AllocationLine{
		PaymentID:        p.ID,
		InvoiceID:        inv.ID,
		RepresentativeID: rep.ID,
		Amount:           amount,
		Method:           method,
		Actor:            actor,
	}

	if err := tx.AppendAllocationLine(ctx, line); err != nil {
		return nil, fmt.Errorf("appending allocation line: %w", err)
	}

	res.LineID = line.ID
	res.CachedDebt = decimal.Max(decimal.Zero, rep.CachedDebt.Sub(amount))

	if err := tx.SetCachedDebt(ctx, rep.ID, res.CachedDebt); err != nil {
		return nil, fmt.Errorf("updating cached debt: %w", err)
	}

	res.Message = fmt.Sprintf("allocated %s of payment to invoice %s", amount.StringFixed(2), inv.Number)

	return res, nil
}

// AllocateRepresentative auto-allocates every unallocated payment of a
// representative, oldest first. It stops at the first payment that finds no
// outstanding invoice; other failures are collected and skipped.
func (s *Service) AllocateRepresentative(ctx context.Context, repID uuid.UUID, actor string) (*BulkResult, error) {
	payments, err := s.Unallocated(ctx, repID)
	if err != nil {
		return nil, err
	}

	out := &BulkResult{RepresentativeID: repID, TotalAllocated: decimal.Zero}

	for _, p := range payments {
		res, err := s.AutoAllocate(ctx, p.ID, actor)
		if err != nil {
			if !errors.Is(err, ErrNoEligibleInvoice) && !errors.Is(err, ErrAlreadyAllocated) && !errors.Is(err, ErrNotFound) {
				return out, err
			}

			out.Failures = append(out.Failures, Failure{PaymentID: p.ID, Reason: err.Error()})

			if errors.Is(err, ErrNoEligibleInvoice) {
				break
			}

			continue
		}

		out.Results = append(out.Results, res)
		out.TotalAllocated = out.TotalAllocated.Add(res.Allocated)
	}

	return out, nil
}

// RecordPayment stores a new unallocated payment.
func (s *Service) RecordPayment(ctx context.Context, params PaymentParams) (*ledger.Payment, error) {
	if !ledger.ValidAmount(params.Amount) {
		return nil, fmt.Errorf("amount %s: %w", params.Amount, ErrInvalidAmount)
	}

	p := &ledger.Payment{
		RepresentativeID: params.RepresentativeID,
		Amount:           params.Amount,
		PaymentDate:      params.PaymentDate,
		Reference:        params.Reference,
	}

	if p.PaymentDate.IsZero() {
		p.PaymentDate = s.opts.Now()
	}

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockRepresentative(ctx, params.RepresentativeID); err != nil {
			return fmt.Errorf("locking representative: %w", err)
		}

		if err := tx.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("creating payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(cache.AllocationKey(p.RepresentativeID), cache.KeyMetrics)

	return p, nil
}

// Backfill appends synthetic lines for allocated payments that predate the
// allocation audit trail.
func (s *Service) Backfill(ctx context.Context, repID uuid.UUID, actor string) (*BackfillResult, error) {
	out := &BackfillResult{RepresentativeID: repID}

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockRepresentative(ctx, repID); err != nil {
			return fmt.Errorf("locking representative: %w", err)
		}

		payments, err := tx.ListPayments(ctx, ledger.PaymentFilter{RepresentativeID: &repID, Allocated: new(true)})
		if err != nil {
			return fmt.Errorf("listing allocated payments: %w", err)
		}

		lines, err := tx.ListAllocationLines(ctx, ledger.LineFilter{RepresentativeID: &repID})
		if err != nil {
			return fmt.Errorf("listing allocation lines: %w", err)
		}

		covered := make(map[uuid.UUID]bool, len(lines))
		for _, l := range lines {
			covered[l.PaymentID] = true
		}

		for _, p := range payments {
			if covered[p.ID] || p.InvoiceID == nil {
				continue
			}

			line := &ledger.AllocationLine{
				PaymentID:        p.ID,
				InvoiceID:        *p.InvoiceID,
				RepresentativeID: repID,
				Amount:           p.Amount,
				Method:           ledger.MethodBackfill,
				Synthetic:        true,
				Actor:            actor,
			}

			if err := tx.AppendAllocationLine(ctx, line); err != nil {
				return fmt.Errorf("appending backfill line: %w", err)
			}

			out.Lines = append(out.Lines, line)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Created = len(out.Lines)

	if out.Created > 0 {
		s.cache.Invalidate(cache.AllocationKey(repID))
	}

	return out, nil
}

func (s *Service) invalidate(repID uuid.UUID) {
	keys := cache.RepresentativeKeys(repID)
	if s.opts.CascadeGlobal {
		keys = append(keys, cache.GlobalKeys()...)
	}

	s.cache.Invalidate(keys...)
}
