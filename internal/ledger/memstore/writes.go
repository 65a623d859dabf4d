package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

func (t *memTx) LockRepresentative(ctx context.Context, id uuid.UUID) (*ledger.Representative, error) {
	return t.GetRepresentative(ctx, id)
}

func (t *memTx) LockPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	return t.GetPayment(ctx, id)
}

// LockIssueDate is a no-op: memory transactions are already serialized.
func (t *memTx) LockIssueDate(context.Context, time.Time) error {
	return nil
}

func (t *memTx) CreateRepresentative(_ context.Context, rep *ledger.Representative) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	if rep.CachedDebt.IsNegative() {
		return fmt.Errorf("representative %s: negative cached debt: %w", rep.Code, ledger.ErrInvalid)
	}

	now := t.now()
	rep.CreatedAt, rep.UpdatedAt = now, now

	t.st().reps[rep.ID] = new(*rep)

	return nil
}

func (t *memTx) CreateInvoice(_ context.Context, inv *ledger.Invoice) error {
	st := t.st()

	if _, ok := st.reps[inv.RepresentativeID]; !ok {
		return fmt.Errorf("representative %s: %w", inv.RepresentativeID, ledger.ErrNotFound)
	}

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	if inv.Status == "" {
		inv.Status = ledger.StatusUnpaid
	}

	inv.CreatedAt = t.now()
	st.invoices[inv.ID] = new(*inv)

	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p *ledger.Payment) error {
	st := t.st()

	if _, ok := st.reps[p.RepresentativeID]; !ok {
		return fmt.Errorf("representative %s: %w", p.RepresentativeID, ledger.ErrNotFound)
	}

	if !p.Amount.IsPositive() {
		return fmt.Errorf("payment amount %s: %w", p.Amount, ledger.ErrInvalid)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	p.CreatedAt = t.now()
	st.payments[p.ID] = new(*p)

	return nil
}

func (t *memTx) MarkPaymentAllocated(_ context.Context, id, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	p, ok := t.st().payments[id]
	if !ok || p.IsAllocated {
		return fmt.Errorf("unallocated payment %s: %w", id, ledger.ErrNotFound)
	}

	p.InvoiceID = new(invoiceID)
	p.Amount = amount
	p.IsAllocated = true
	p.AllocatedAt = new(at)

	return nil
}

func (t *memTx) ReleasePayment(_ context.Context, id uuid.UUID) error {
	p, ok := t.st().payments[id]
	if !ok {
		return fmt.Errorf("payment %s: %w", id, ledger.ErrNotFound)
	}

	p.InvoiceID = nil
	p.IsAllocated = false
	p.AllocatedAt = nil

	return nil
}

func (t *memTx) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, status ledger.InvoiceStatus) error {
	inv, ok := t.st().invoices[id]
	if !ok {
		return fmt.Errorf("invoice %s: %w", id, ledger.ErrNotFound)
	}

	inv.Status = status

	return nil
}

func (t *memTx) DeleteInvoice(_ context.Context, id uuid.UUID) error {
	st := t.st()

	if _, ok := st.invoices[id]; !ok {
		return fmt.Errorf("invoice %s: %w", id, ledger.ErrNotFound)
	}

	delete(st.invoices, id)

	return nil
}

func (t *memTx) SetCachedDebt(_ context.Context, id uuid.UUID, debt decimal.Decimal) error {
	if debt.IsNegative() {
		return fmt.Errorf("cached debt %s: %w", debt, ledger.ErrInvalid)
	}

	rep, ok := t.st().reps[id]
	if !ok {
		return fmt.Errorf("representative %s: %w", id, ledger.ErrNotFound)
	}

	rep.CachedDebt = debt
	rep.UpdatedAt = t.now()

	return nil
}

func (t *memTx) AppendAllocationLine(_ context.Context, line *ledger.AllocationLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}

	line.CreatedAt = t.now()

	st := t.st()
	st.lines = append(st.lines, new(*line))

	return nil
}

func (t *memTx) AppendAudit(_ context.Context, rec *ledger.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	rec.CreatedAt = t.now()

	st := t.st()
	st.audit = append(st.audit, new(*rec))

	return nil
}

func (t *memTx) CreateRun(_ context.Context, run *ledger.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = t.now()
	}

	t.st().runs[run.ID] = new(*run)

	return nil
}

func (t *memTx) UpdateRun(_ context.Context, run *ledger.Run) error {
	st := t.st()

	stored, ok := st.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, ledger.ErrNotFound)
	}

	if stored.Status == ledger.RunCancelled && run.Status != ledger.RunCancelled {
		return fmt.Errorf("run %s: %w", run.ID, ledger.ErrRunClosed)
	}

	next := new(*run)
	next.CancelRequested = stored.CancelRequested || run.CancelRequested

	if stored.HeartbeatAt != nil && (next.HeartbeatAt == nil || next.HeartbeatAt.Before(*stored.HeartbeatAt)) {
		next.HeartbeatAt = new(*stored.HeartbeatAt)
	}

	st.runs[run.ID] = next

	return nil
}

func (t *memTx) HeartbeatRun(_ context.Context, id uuid.UUID, at time.Time) (*ledger.Run, error) {
	run, ok := t.st().runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ledger.ErrNotFound)
	}

	run.HeartbeatAt = new(at)

	return new(*run), nil
}

func (t *memTx) CreateActions(_ context.Context, actions []*ledger.RepairAction) error {
	st := t.st()
	now := t.now()

	for _, a := range actions {
		if _, ok := st.runs[a.RunID]; !ok {
			return fmt.Errorf("run %s: %w", a.RunID, ledger.ErrNotFound)
		}

		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}

		a.CreatedAt = now
		st.actions[a.RunID] = append(st.actions[a.RunID], new(*a))
	}

	return nil
}

func (t *memTx) UpdateAction(_ context.Context, action *ledger.RepairAction) error {
	actions := t.st().actions[action.RunID]

	i := slices.IndexFunc(actions, func(a *ledger.RepairAction) bool { return a.ID == action.ID })
	if i < 0 {
		return fmt.Errorf("repair action %s: %w", action.ID, ledger.ErrNotFound)
	}

	actions[i] = new(*action)

	return nil
}
