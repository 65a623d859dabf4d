package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type reader struct {
	lock func() func()
	st   func() *state
	now  func() time.Time
}

func (r reader) GetRepresentative(_ context.Context, id uuid.UUID) (*ledger.Representative, error) {
	defer r.lock()()

	rep, ok := r.st().reps[id]
	if !ok {
		return nil, fmt.Errorf("representative %s: %w", id, ledger.ErrNotFound)
	}

	return new(*rep), nil
}

func (r reader) ListRepresentatives(_ context.Context, filter ledger.RepresentativeFilter) ([]*ledger.Representative, error) {
	defer r.lock()()

	var reps []*ledger.Representative

	for _, rep := range r.st().reps {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, rep.ID) {
			continue
		}

		if filter.ActiveOnly && !rep.Active {
			continue
		}

		reps = append(reps, new(*rep))
	}

	slices.SortFunc(reps, func(a, b *ledger.Representative) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), compareID(a.ID, b.ID))
	})

	return reps, nil
}

func (r reader) GetInvoice(_ context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	defer r.lock()()

	inv, ok := r.st().invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, ledger.ErrNotFound)
	}

	return new(*inv), nil
}

func (r reader) ListInvoices(_ context.Context, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	defer r.lock()()

	return r.st().invoicesMatching(filter), nil
}

func (s *state) invoicesMatching(filter ledger.InvoiceFilter) []*ledger.Invoice {
	var out []*ledger.Invoice

	for _, inv := range s.invoices {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, inv.ID) {
			continue
		}

		if len(filter.RepresentativeIDs) > 0 && !slices.Contains(filter.RepresentativeIDs, inv.RepresentativeID) {
			continue
		}

		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, inv.Status) {
			continue
		}

		if filter.IssueDate != nil && !sameDay(*filter.IssueDate, inv.IssueDate) {
			continue
		}

		out = append(out, new(*inv))
	}

	slices.SortFunc(out, func(a, b *ledger.Invoice) int {
		return cmp.Or(a.IssueDate.Compare(b.IssueDate), compareID(a.ID, b.ID))
	})

	return out
}

func (r reader) GetPayment(_ context.Context, id uuid.UUID) (*ledger.Payment, error) {
	defer r.lock()()

	p, ok := r.st().payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, ledger.ErrNotFound)
	}

	return new(*p), nil
}

func (r reader) ListPayments(_ context.Context, filter ledger.PaymentFilter) ([]*ledger.Payment, error) {
	defer r.lock()()

	var out []*ledger.Payment

	for _, p := range r.st().payments {
		if filter.RepresentativeID != nil && p.RepresentativeID != *filter.RepresentativeID {
			continue
		}

		if filter.InvoiceID != nil && (p.InvoiceID == nil || *p.InvoiceID != *filter.InvoiceID) {
			continue
		}

		if filter.Allocated != nil && p.IsAllocated != *filter.Allocated {
			continue
		}

		out = append(out, new(*p))
	}

	slices.SortFunc(out, func(a, b *ledger.Payment) int {
		return cmp.Or(
			a.PaymentDate.Compare(b.PaymentDate),
			a.CreatedAt.Compare(b.CreatedAt),
			compareID(a.ID, b.ID),
		)
	})

	return out, nil
}

func (r reader) ListAllocationLines(_ context.Context, filter ledger.LineFilter) ([]*ledger.AllocationLine, error) {
	defer r.lock()()

	var out []*ledger.AllocationLine

	for _, l := range r.st().lines {
		if filter.RepresentativeID != nil && l.RepresentativeID != *filter.RepresentativeID {
			continue
		}

		if filter.PaymentID != nil && l.PaymentID != *filter.PaymentID {
			continue
		}

		if filter.InvoiceID != nil && l.InvoiceID != *filter.InvoiceID {
			continue
		}

		out = append(out, new(*l))
	}

	return out, nil
}

func (r reader) ListAudit(_ context.Context, filter ledger.AuditFilter) ([]*ledger.AuditRecord, error) {
	defer r.lock()()

	var out []*ledger.AuditRecord

	for _, a := range r.st().audit {
		if filter.RepresentativeID != nil && (a.RepresentativeID == nil || *a.RepresentativeID != *filter.RepresentativeID) {
			continue
		}

		if filter.RunID != nil && (a.RunID == nil || *a.RunID != *filter.RunID) {
			continue
		}

		if filter.Kind != nil && a.Kind != *filter.Kind {
			continue
		}

		out = append(out, new(*a))
	}

	return out, nil
}

func (r reader) Totals(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Totals, error) {
	defer r.lock()()

	st := r.st()

	totals := make(map[uuid.UUID]ledger.Totals, len(ids))
	for _, id := range ids {
		if _, ok := st.reps[id]; ok {
			totals[id] = ledger.Totals{RepresentativeID: id, Invoiced: decimal.Zero, Allocated: decimal.Zero}
		}
	}

	for _, inv := range st.invoices {
		t, ok := totals[inv.RepresentativeID]
		if !ok {
			continue
		}

		t.Invoiced = t.Invoiced.Add(inv.Amount)
		totals[inv.RepresentativeID] = t
	}

	for _, p := range st.payments {
		t, ok := totals[p.RepresentativeID]
		if !ok || !p.IsAllocated {
			continue
		}

		t.Allocated = t.Allocated.Add(p.Amount)
		totals[p.RepresentativeID] = t
	}

	return totals, nil
}

func (r reader) InvoiceBalances(_ context.Context, filter ledger.InvoiceFilter) ([]ledger.InvoiceBalance, error) {
	defer r.lock()()

	st := r.st()
	invoices := st.invoicesMatching(filter)

	balances := make([]ledger.InvoiceBalance, len(invoices))
	for i, inv := range invoices {
		allocated, n := st.allocatedTo(inv.ID)
		balances[i] = ledger.InvoiceBalance{Invoice: inv, Allocated: allocated, Payments: n}
	}

	return balances, nil
}

func (s *state) allocatedTo(invoiceID uuid.UUID) (decimal.Decimal, int) {
	sum, n := decimal.Zero, 0

	for _, p := range s.payments {
		if p.IsAllocated && p.InvoiceID != nil && *p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
			n++
		}
	}

	return sum, n
}

func (r reader) OrphanedPayments(_ context.Context, representativeIDs []uuid.UUID) ([]ledger.OrphanedPayment, error) {
	defer r.lock()()

	st := r.st()

	var out []ledger.OrphanedPayment

	for _, p := range st.payments {
		if !p.IsAllocated {
			continue
		}

		if len(representativeIDs) > 0 && !slices.Contains(representativeIDs, p.RepresentativeID) {
			continue
		}

		var reason string

		switch {
		case p.InvoiceID == nil:
			reason = ledger.OrphanNoInvoice
		case st.invoices[*p.InvoiceID] == nil:
			reason = ledger.OrphanInvoiceMissing
		case st.invoices[*p.InvoiceID].RepresentativeID != p.RepresentativeID:
			reason = ledger.OrphanForeignInvoice
		default:
			continue
		}

		out = append(out, ledger.OrphanedPayment{Payment: new(*p), Reason: reason})
	}

	slices.SortFunc(out, func(a, b ledger.OrphanedPayment) int {
		return compareID(a.Payment.ID, b.Payment.ID)
	})

	return out, nil
}

func (r reader) GetRun(_ context.Context, id uuid.UUID) (*ledger.Run, error) {
	defer r.lock()()

	run, ok := r.st().runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ledger.ErrNotFound)
	}

	return new(*run), nil
}

func (r reader) ListRuns(_ context.Context, limit, offset int) ([]*ledger.Run, error) {
	defer r.lock()()

	runs := make([]*ledger.Run, 0, len(r.st().runs))
	for _, run := range r.st().runs {
		runs = append(runs, new(*run))
	}

	slices.SortFunc(runs, func(a, b *ledger.Run) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), compareID(a.ID, b.ID))
	})

	if offset >= len(runs) {
		return nil, nil
	}

	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}

	return runs, nil
}

func (r reader) ListActions(_ context.Context, runID uuid.UUID) ([]*ledger.RepairAction, error) {
	defer r.lock()()

	actions := r.st().actions[runID]

	out := make([]*ledger.RepairAction, len(actions))
	for i, a := range actions {
		out[i] = new(*a)
	}

	slices.SortFunc(out, func(a, b *ledger.RepairAction) int { return cmp.Compare(a.Seq, b.Seq) })

	return out, nil
}

func (r reader) PaymentStats(_ context.Context) (ledger.PaymentStats, error) {
	defer r.lock()()

	stats := ledger.PaymentStats{
		TotalAmount:       decimal.Zero,
		AllocatedAmount:   decimal.Zero,
		UnallocatedAmount: decimal.Zero,
	}

	for _, p := range r.st().payments {
		stats.Total++
		stats.TotalAmount = stats.TotalAmount.Add(p.Amount)

		if !p.IsAllocated {
			stats.Unallocated++
			stats.UnallocatedAmount = stats.UnallocatedAmount.Add(p.Amount)

			continue
		}

		stats.Allocated++
		stats.AllocatedAmount = stats.AllocatedAmount.Add(p.Amount)

		if p.AllocatedAt != nil && (stats.LastAllocationAt == nil || p.AllocatedAt.After(*stats.LastAllocationAt)) {
			stats.LastAllocationAt = new(*p.AllocatedAt)
		}
	}

	return stats, nil
}

func (r reader) DailyAllocations(_ context.Context, since time.Time) ([]ledger.DailyAllocation, error) {
	defer r.lock()()

	since = truncateDay(since)
	days := make(map[time.Time]*ledger.DailyAllocation)

	bucket := func(t time.Time) *ledger.DailyAllocation {
		day := truncateDay(t)

		d, ok := days[day]
		if !ok {
			d = &ledger.DailyAllocation{Day: day, AllocatedAmount: decimal.Zero}
			days[day] = d
		}

		return d
	}

	for _, p := range r.st().payments {
		if !p.CreatedAt.Before(since) {
			bucket(p.CreatedAt).Created++
		}

		if p.IsAllocated && p.AllocatedAt != nil && !p.AllocatedAt.Before(since) {
			d := bucket(*p.AllocatedAt)
			d.Allocated++
			d.AllocatedAmount = d.AllocatedAmount.Add(p.Amount)
		}
	}

	out := make([]ledger.DailyAllocation, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}

	slices.SortFunc(out, func(a, b ledger.DailyAllocation) int { return a.Day.Compare(b.Day) })

	return out, nil
}

func (r reader) UnallocatedByRepresentative(_ context.Context, over, limit int) ([]ledger.Backlog, error) {
	defer r.lock()()

	st := r.st()
	byRep := make(map[uuid.UUID]*ledger.Backlog)

	for _, p := range st.payments {
		if p.IsAllocated {
			continue
		}

		b, ok := byRep[p.RepresentativeID]
		if !ok {
			b = &ledger.Backlog{RepresentativeID: p.RepresentativeID, Amount: decimal.Zero}
			if rep := st.reps[p.RepresentativeID]; rep != nil {
				b.Code, b.Name = rep.Code, rep.Name
			}

			byRep[p.RepresentativeID] = b
		}

		b.Count++
		b.Amount = b.Amount.Add(p.Amount)
	}

	var out []ledger.Backlog

	for _, b := range byRep {
		if b.Count > over {
			out = append(out, *b)
		}
	}

	slices.SortFunc(out, func(a, b ledger.Backlog) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), b.Amount.Cmp(a.Amount), compareID(a.RepresentativeID, b.RepresentativeID))
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func compareID(a, b uuid.UUID) int {
	return cmp.Compare(a.String(), b.String())
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}
