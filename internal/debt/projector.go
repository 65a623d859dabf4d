// Package debt derives each representative's ledger-true outstanding debt
// from invoices and allocated payments.
package debt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// Source is satisfied by ledger.Store and ledger.Tx, so projections can be
// taken inside a locked transaction.
type Source interface {
	Totals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Totals, error)
}

type Projection struct {
	RepresentativeID uuid.UUID
	TotalInvoiced    decimal.Decimal
	TotalAllocated   decimal.Decimal
	LedgerDebt       decimal.Decimal
}

// Compute is max(0, invoiced - allocated).
func Compute(invoiced, allocated decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, invoiced.Sub(allocated))
}

func FromTotals(t ledger.Totals) Projection {
	return Projection{
		RepresentativeID: t.RepresentativeID,
		TotalInvoiced:    t.Invoiced,
		TotalAllocated:   t.Allocated,
		LedgerDebt:       Compute(t.Invoiced, t.Allocated),
	}
}

type Projector struct {
	src Source
}

func NewProjector(src Source) *Projector {
	return &Projector{src: src}
}

func (p *Projector) Project(ctx context.Context, id uuid.UUID) (Projection, error) {
	projections, err := p.ProjectMany(ctx, []uuid.UUID{id})
	if err != nil {
		return Projection{}, err
	}

	proj, ok := projections[id]
	if !ok {
		return Projection{}, fmt.Errorf("representative %s: %w", id, ledger.ErrNotFound)
	}

	return proj, nil
}

// ProjectMany projects every id with a single aggregate query. Unknown ids
// are absent from the result.
func (p *Projector) ProjectMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Projection, error) {
	totals, err := p.src.Totals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("projecting debt: %w", err)
	}

	out := make(map[uuid.UUID]Projection, len(totals))
	for id, t := range totals {
		out[id] = FromTotals(t)
	}

	return out, nil
}
