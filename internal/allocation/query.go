package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// overAllocationTolerance absorbs sub-cent noise from legacy imports.
var overAllocationTolerance = decimal.New(1, -6)

// Unallocated lists the representative's unallocated payments, oldest first.
func (s *Service) Unallocated(ctx context.Context, repID uuid.UUID) ([]*ledger.Payment, error) {
	if _, err := s.store.GetRepresentative(ctx, repID); err != nil {
		return nil, err
	}

	payments, err := s.store.ListPayments(ctx, ledger.PaymentFilter{RepresentativeID: &repID, Allocated: new(false)})
	if err != nil {
		return nil, fmt.Errorf("listing unallocated payments: %w", err)
	}

	return payments, nil
}

// Outstanding lists invoices that can still receive allocations in the
// order automatic allocation visits them.
func (s *Service) Outstanding(ctx context.Context, repID uuid.UUID) ([]ledger.InvoiceBalance, error) {
	if _, err := s.store.GetRepresentative(ctx, repID); err != nil {
		return nil, err
	}

	balances, err := s.store.InvoiceBalances(ctx, ledger.InvoiceFilter{
		RepresentativeIDs: []uuid.UUID{repID},
		Statuses:          ledger.OutstandingStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("listing outstanding invoices: %w", err)
	}

	out := balances[:0]

	for _, b := range balances {
		if b.Remaining().IsPositive() {
			out = append(out, b)
		}
	}

	SortFIFO(out)

	return out, nil
}

func (s *Service) Summary(ctx context.Context, repID uuid.UUID) (*Summary, error) {
	key := cache.AllocationKey(repID)
	if v, ok := s.cache.Get(key); ok {
		if sum, ok := v.(*Summary); ok {
			return sum, nil
		}
	}

	version := s.cache.Version(key, cache.DebtKey(repID))

	if _, err := s.store.GetRepresentative(ctx, repID); err != nil {
		return nil, err
	}

	payments, err := s.store.ListPayments(ctx, ledger.PaymentFilter{RepresentativeID: &repID})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	outstanding, err := s.Outstanding(ctx, repID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		RepresentativeID:    repID,
		Payments:            len(payments),
		AllocatedAmount:     decimal.Zero,
		UnallocatedAmount:   decimal.Zero,
		OutstandingInvoices: len(outstanding),
		OutstandingAmount:   decimal.Zero,
	}

	for _, p := range payments {
		if p.IsAllocated {
			sum.AllocatedPayments++
			sum.AllocatedAmount = sum.AllocatedAmount.Add(p.Amount)
		} else {
			sum.UnallocatedPayments++
			sum.UnallocatedAmount = sum.UnallocatedAmount.Add(p.Amount)
		}
	}

	for _, b := range outstanding {
		sum.OutstandingAmount = sum.OutstandingAmount.Add(b.Remaining())
	}

	s.cache.SetIfCurrent(version, sum, cache.SetOptions{})

	return sum, nil
}

// Validate checks the allocation invariants of one representative and
// reports every violation found.
func (s *Service) Validate(ctx context.Context, repID uuid.UUID) (*Validation, error) {
	if _, err := s.store.GetRepresentative(ctx, repID); err != nil {
		return nil, err
	}

	balances, err := s.store.InvoiceBalances(ctx, ledger.InvoiceFilter{RepresentativeIDs: []uuid.UUID{repID}})
	if err != nil {
		return nil, fmt.Errorf("listing invoice balances: %w", err)
	}

	orphans, err := s.store.OrphanedPayments(ctx, []uuid.UUID{repID})
	if err != nil {
		return nil, fmt.Errorf("listing orphaned payments: %w", err)
	}

	payments, err := s.store.ListPayments(ctx, ledger.PaymentFilter{RepresentativeID: &repID, Allocated: new(true)})
	if err != nil {
		return nil, fmt.Errorf("listing allocated payments: %w", err)
	}

	lines, err := s.store.ListAllocationLines(ctx, ledger.LineFilter{RepresentativeID: &repID})
	if err != nil {
		return nil, fmt.Errorf("listing allocation lines: %w", err)
	}

	out := &Validation{RepresentativeID: repID}

	for _, b := range balances {
		inv := b.Invoice

		if b.Allocated.Sub(inv.Amount).GreaterThan(overAllocationTolerance) {
			out.Violations = append(out.Violations, Violation{
				Kind:      ViolationOverAllocated,
				InvoiceID: new(inv.ID),
				Detail:    fmt.Sprintf("invoice %s allocated %s of %s", inv.Number, b.Allocated, inv.Amount),
			})
		}

		if want := b.DerivedStatus(); want != inv.Status {
			out.Violations = append(out.Violations, Violation{
				Kind:      ViolationStatusMismatch,
				InvoiceID: new(inv.ID),
				Detail:    fmt.Sprintf("invoice %s is %s, allocations say %s", inv.Number, inv.Status, want),
			})
		}
	}

	for _, o := range orphans {
		out.Violations = append(out.Violations, Violation{
			Kind:      ViolationOrphan,
			PaymentID: new(o.Payment.ID),
			Detail:    o.Reason,
		})
	}

	lineSums := make(map[uuid.UUID]decimal.Decimal)
	for _, l := range lines {
		lineSums[l.PaymentID] = lineSums[l.PaymentID].Add(l.Amount)
	}

	for _, p := range payments {
		sum, ok := lineSums[p.ID]
		if ok && !sum.Equal(p.Amount) {
			out.Violations = append(out.Violations, Violation{
				Kind:      ViolationLineMismatch,
				PaymentID: new(p.ID),
				Detail:    fmt.Sprintf("payment of %s has allocation lines totalling %s", p.Amount, sum),
			})
		}
	}

	out.Valid = len(out.Violations) == 0

	return out, nil
}
