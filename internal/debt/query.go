package debt

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

type Reader interface {
	Source
	GetRepresentative(ctx context.Context, id uuid.UUID) (*ledger.Representative, error)
	ListRepresentatives(ctx context.Context, filter ledger.RepresentativeFilter) ([]*ledger.Representative, error)
	InvoiceBalances(ctx context.Context, filter ledger.InvoiceFilter) ([]ledger.InvoiceBalance, error)
}

// View is the debt figure served to collaborators: the projection next to
// the cached snapshot it should agree with.
type View struct {
	Projection
	Code       string
	Name       string
	CachedDebt decimal.Decimal
	Drift      decimal.Decimal // LedgerDebt - CachedDebt
}

type Summary struct {
	Representatives int
	Debtors         int
	TotalInvoiced   decimal.Decimal
	TotalAllocated  decimal.Decimal
	LedgerDebt      decimal.Decimal
	CachedDebt      decimal.Decimal
}

// Query serves debt figures through the cache. Entries are dropped by the
// writers that stale them.
type Query struct {
	store     Reader
	cache     *cache.Manager
	projector *Projector
}

func NewQuery(store Reader, c *cache.Manager) *Query {
	return &Query{store: store, cache: c, projector: NewProjector(store)}
}

func (q *Query) Debt(ctx context.Context, id uuid.UUID) (*View, error) {
	key := cache.DebtKey(id)
	if v, ok := cache.Lookup[*View](q.cache, key); ok {
		return v, nil
	}

	version := q.cache.Version(key)

	rep, err := q.store.GetRepresentative(ctx, id)
	if err != nil {
		return nil, err
	}

	proj, err := q.projector.Project(ctx, id)
	if err != nil {
		return nil, err
	}

	v := newView(rep, proj)
	q.cache.SetIfCurrent(version, v, cache.SetOptions{})

	return v, nil
}

func (q *Query) Invoices(ctx context.Context, id uuid.UUID) ([]ledger.InvoiceBalance, error) {
	key := cache.InvoicesKey(id)
	if v, ok := cache.Lookup[[]ledger.InvoiceBalance](q.cache, key); ok {
		return v, nil
	}

	version := q.cache.Version(key, cache.DebtKey(id))

	if _, err := q.store.GetRepresentative(ctx, id); err != nil {
		return nil, err
	}

	balances, err := q.store.InvoiceBalances(ctx, ledger.InvoiceFilter{RepresentativeIDs: []uuid.UUID{id}})
	if err != nil {
		return nil, fmt.Errorf("listing invoice balances: %w", err)
	}

	q.cache.SetIfCurrent(version, balances, cache.SetOptions{})

	return balances, nil
}

func (q *Query) Summary(ctx context.Context) (*Summary, error) {
	if v, ok := cache.Lookup[*Summary](q.cache, cache.KeySummary); ok {
		return v, nil
	}

	version := q.cache.Version(cache.KeySummary)

	views, err := q.allViews(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Representatives: len(views),
		TotalInvoiced:   decimal.Zero,
		TotalAllocated:  decimal.Zero,
		LedgerDebt:      decimal.Zero,
		CachedDebt:      decimal.Zero,
	}

	for _, v := range views {
		s.TotalInvoiced = s.TotalInvoiced.Add(v.TotalInvoiced)
		s.TotalAllocated = s.TotalAllocated.Add(v.TotalAllocated)
		s.LedgerDebt = s.LedgerDebt.Add(v.LedgerDebt)
		s.CachedDebt = s.CachedDebt.Add(v.CachedDebt)

		if v.LedgerDebt.IsPositive() {
			s.Debtors++
		}
	}

	q.cache.SetIfCurrent(version, s, cache.SetOptions{})

	return s, nil
}

// TopDebtors returns the n representatives with the largest ledger debt.
func (q *Query) TopDebtors(ctx context.Context, n int) ([]*View, error) {
	views, ok := cache.Lookup[[]*View](q.cache, cache.KeyDebtors)
	if !ok {
		version := q.cache.Version(cache.KeyDebtors, cache.KeySummary)

		all, err := q.allViews(ctx)
		if err != nil {
			return nil, err
		}

		views = make([]*View, 0, len(all))

		for _, v := range all {
			if v.LedgerDebt.IsPositive() {
				views = append(views, v)
			}
		}

		slices.SortFunc(views, func(a, b *View) int {
			return cmp.Or(b.LedgerDebt.Cmp(a.LedgerDebt), cmp.Compare(a.Code, b.Code))
		})

		q.cache.SetIfCurrent(version, views, cache.SetOptions{})
	}

	if n > 0 && len(views) > n {
		views = views[:n]
	}

	return views, nil
}

func (q *Query) allViews(ctx context.Context) ([]*View, error) {
	reps, err := q.store.ListRepresentatives(ctx, ledger.RepresentativeFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}

	ids := make([]uuid.UUID, len(reps))
	for i, r := range reps {
		ids[i] = r.ID
	}

	projections, err := q.projector.ProjectMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(reps))
	for _, r := range reps {
		views = append(views, newView(r, projections[r.ID]))
	}

	return views, nil
}

func newView(rep *ledger.Representative, proj Projection) *View {
	proj.RepresentativeID = rep.ID

	return &View{
		Projection: proj,
		Code:       rep.Code,
		Name:       rep.Name,
		CachedDebt: rep.CachedDebt,
		Drift:      proj.LedgerDebt.Sub(rep.CachedDebt),
	}
}
