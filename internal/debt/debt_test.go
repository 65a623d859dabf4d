package debt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger/memstore"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute(t *testing.T) {
	type testCase struct {
		name      string
		invoiced  string
		allocated string
		want      string
	}

	tests := []testCase{
		{name: "Outstanding", invoiced: "200000", allocated: "150000", want: "50000"},
		{name: "Settled", invoiced: "200000", allocated: "200000", want: "0"},
		{name: "Overpaid", invoiced: "100", allocated: "250.50", want: "0"},
		{name: "Empty", invoiced: "0", allocated: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := debt.Compute(d(tt.invoiced), d(tt.allocated))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

type countingSource struct {
	calls int
	src   debt.Source
}

func (c *countingSource) Totals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Totals, error) {
	c.calls++
	return c.src.Totals(ctx, ids)
}

func TestProjector_ProjectManyUsesOneQuery(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID

	for i := range 25 {
		rep := s.SeedRepresentative(string(rune('A'+i)), decimal.Zero)
		s.SeedInvoice(rep.ID, decimal.NewFromInt(int64(100*(i+1))), day)
		ids = append(ids, rep.ID)
	}

	src := &countingSource{src: s}

	got, err := debt.NewProjector(src).ProjectMany(ctx, ids)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Len(t, got, 25)
	assert.True(t, got[ids[4]].LedgerDebt.Equal(decimal.NewFromInt(500)))
}

func TestProjector_ProjectUnknown(t *testing.T) {
	_, err := debt.NewProjector(memstore.New()).Project(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

type failingSource struct{}

func (failingSource) Totals(context.Context, []uuid.UUID) (map[uuid.UUID]ledger.Totals, error) {
	return nil, errors.New("connection refused")
}

func TestProjector_SourceError(t *testing.T) {
	_, err := debt.NewProjector(failingSource{}).Project(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrNotFound)
}

func TestQuery_DebtIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	rep := s.SeedRepresentative("R1", d("1000"))
	s.SeedInvoice(rep.ID, d("1000"), day)

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 100})
	require.NoError(t, err)

	q := debt.NewQuery(s, c)

	v, err := q.Debt(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, v.LedgerDebt.Equal(d("1000")))
	assert.True(t, v.Drift.IsZero())

	s.SeedInvoice(rep.ID, d("500"), day)

	v, err = q.Debt(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, v.LedgerDebt.Equal(d("1000")), "served from cache")

	c.Invalidate(cache.DebtKey(rep.ID))

	v, err = q.Debt(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, v.LedgerDebt.Equal(d("1500")))
	assert.True(t, v.Drift.Equal(d("500")))
}

func TestQuery_InvoicesDependOnDebt(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	rep := s.SeedRepresentative("R1", decimal.Zero)
	s.SeedInvoice(rep.ID, d("10"), day)

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 100})
	require.NoError(t, err)

	q := debt.NewQuery(s, c)

	got, err := q.Invoices(ctx, rep.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c.Invalidate(cache.DebtKey(rep.ID))

	_, ok := c.Get(cache.InvoicesKey(rep.ID))
	assert.False(t, ok)
}

func TestQuery_SummaryAndTopDebtors(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	a := s.SeedRepresentative("A", d("300"))
	b := s.SeedRepresentative("B", d("100"))
	s.SeedRepresentative("C", decimal.Zero)

	s.SeedInvoice(a.ID, d("300"), day)
	inv := s.SeedInvoice(b.ID, d("400"), day)
	s.SeedAllocatedPayment(b.ID, inv.ID, d("300"), day)

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 100})
	require.NoError(t, err)

	q := debt.NewQuery(s, c)

	sum, err := q.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Representatives)
	assert.Equal(t, 2, sum.Debtors)
	assert.True(t, sum.LedgerDebt.Equal(d("400")))
	assert.True(t, sum.TotalInvoiced.Equal(d("700")))

	top, err := q.TopDebtors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "A", top[0].Code)

	c.Invalidate(cache.KeySummary)

	_, ok := c.Get(cache.KeyDebtors)
	assert.False(t, ok)
}

// racingStore commits a write right after the first Totals read, between the
// query's store read and its cache write.
type racingStore struct {
	*memstore.Store
	once  bool
	write func()
}

func (r *racingStore) Totals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Totals, error) {
	out, err := r.Store.Totals(ctx, ids)
	if !r.once {
		r.once = true
		r.write()
	}

	return out, err
}

func TestQuery_DebtDropsWriteRacingAllocation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	rep := s.SeedRepresentative("R1", d("200000"))
	s.SeedInvoice(rep.ID, d("200000"), day)
	pay := s.SeedPayment(rep.ID, d("150000"), day)

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 100})
	require.NoError(t, err)

	svc := allocation.NewService(s, c, allocation.Options{})

	rs := &racingStore{Store: s, write: func() {
		_, err := svc.AutoAllocate(ctx, pay.ID, "test")
		require.NoError(t, err)
	}}

	q := debt.NewQuery(rs, c)

	v, err := q.Debt(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, v.LedgerDebt.Equal(d("200000")), "read before the allocation committed")

	v, err = q.Debt(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, v.LedgerDebt.Equal(d("50000")), "got %s", v.LedgerDebt)
	assert.True(t, v.CachedDebt.Equal(d("50000")), "got %s", v.CachedDebt)
	assert.EqualValues(t, 1, c.Stats().StaleWrites)
}
