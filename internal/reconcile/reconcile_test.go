package reconcile_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/debtsync/internal/batch"
	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/job"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger/memstore"
	"github.com/MrJamesThe3rd/debtsync/internal/lock"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

var day = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type engineOpts struct {
	maxAdjustment string
	confidence    int
	locker        lock.Locker
	staleAfter    time.Duration
}

func newEngine(t *testing.T, store ledger.Store, o engineOpts) (*reconcile.Engine, *cache.Manager) {
	t.Helper()

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 1000})
	require.NoError(t, err)

	if o.maxAdjustment == "" {
		o.maxAdjustment = "50000"
	}

	if o.confidence == 0 {
		o.confidence = 85
	}

	if o.locker == nil {
		o.locker = lock.NewLocal()
	}

	e := reconcile.NewEngine(store, c, o.locker, job.NewManager(), reconcile.EngineOptions{
		DriftThreshold:      d("0.005"),
		ConfidenceThreshold: o.confidence,
		MaxAdjustment:       d(o.maxAdjustment),
		StaleAfter:          o.staleAfter,
		Batch:               batch.Options{Size: 10, Concurrency: 2},
	})

	return e, c
}

func cachedDebt(t *testing.T, s ledger.Reader, id uuid.UUID) decimal.Decimal {
	t.Helper()

	rep, err := s.GetRepresentative(context.Background(), id)
	require.NoError(t, err)

	return rep.CachedDebt
}

func TestSafeRatio(t *testing.T) {
	type testCase struct {
		name string
		n, d string
		want string
	}

	tests := []testCase{
		{name: "BothZero", n: "0", d: "0", want: "0"},
		{name: "ZeroDenominator", n: "5", d: "0", want: "1"},
		{name: "Regular", n: "1", d: "4", want: "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, reconcile.SafeRatio(d(tt.n), d(tt.d)).Equal(d(tt.want)))
		})
	}
}

func TestIsAnomaly(t *testing.T) {
	type testCase struct {
		name       string
		cached     string
		ledgerDebt string
		want       bool
	}

	tests := []testCase{
		{name: "Equal", cached: "1000", ledgerDebt: "1000", want: false},
		{name: "WithinThreshold", cached: "1000", ledgerDebt: "1005", want: false},
		{name: "BeyondThreshold", cached: "1000", ledgerDebt: "1005.01", want: true},
		{name: "ZeroCachedNonZeroLedger", cached: "0", ledgerDebt: "0.01", want: true},
		{name: "BothZero", cached: "0", ledgerDebt: "0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcile.IsAnomaly(d(tt.cached), d(tt.ledgerDebt), d("0.005")))
		})
	}
}

func TestDetector_RanksAnomalies(t *testing.T) {
	s := memstore.New()

	small := s.SeedRepresentative("S", d("100"))
	big := s.SeedRepresentative("B", d("5000"))
	fine := s.SeedRepresentative("F", d("10"))
	s.SeedInvoice(fine.ID, d("10"), day)

	report, err := reconcile.NewDetector(s, batch.Options{Size: 2}).Detect(context.Background(), nil, d("0.005"), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scope)
	require.Len(t, report.Anomalies, 2)
	assert.Equal(t, big.ID, report.Anomalies[0].RepresentativeID)
	assert.Equal(t, small.ID, report.Anomalies[1].RepresentativeID)
	assert.True(t, report.TotalDrift.Equal(d("5100")))
	assert.True(t, report.DriftRatio.Equal(d("5100").Div(d("5110"))))
	assert.Equal(t, ledger.RunWarn, report.Status)
}

func TestEngine_CorruptedCacheIsRepaired(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	rep := s.SeedRepresentative("R1", decimal.Zero)
	inv := s.SeedInvoice(rep.ID, d("1000"), day)
	s.SeedAllocatedPayment(rep.ID, inv.ID, d("1000"), day)
	s.CorruptCachedDebt(rep.ID, d("999999"))

	e, _ := newEngine(t, s, engineOpts{maxAdjustment: "1000000"})

	dry, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeDry})
	require.NoError(t, err)

	assert.Equal(t, ledger.RunWarn, dry.Run.Status)
	require.Len(t, dry.Report.Anomalies, 1)
	assert.True(t, dry.Report.Anomalies[0].AbsDrift().Equal(d("999999")))
	assert.Nil(t, dry.Execution)
	assert.True(t, cachedDebt(t, s, rep.ID).Equal(d("999999")), "dry run never writes")

	enforce, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce, Actor: "ops"})
	require.NoError(t, err)

	assert.Equal(t, ledger.RunCompleted, enforce.Run.Status)
	assert.Equal(t, 2, enforce.Execution.Applied)
	assert.True(t, enforce.Execution.Success())
	assert.True(t, cachedDebt(t, s, rep.ID).IsZero())

	audit, err := s.ListAudit(ctx, ledger.AuditFilter{RunID: &enforce.Run.ID})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.AuditDebtAdjustment, audit[0].Kind)
	assert.JSONEq(t, `{"cached_debt":"999999","ledger_debt":"0","total_invoiced":"1000","total_allocated":"1000"}`, string(audit[0].Before))

	after, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeDry})
	require.NoError(t, err)
	assert.Equal(t, ledger.RunOK, after.Run.Status)

	history, err := e.History(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestEngine_LargeCorrectionGoesToManualReview(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	rep := s.SeedRepresentative("R1", d("75000"))

	e, _ := newEngine(t, s, engineOpts{})

	out, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce})
	require.NoError(t, err)

	assert.Empty(t, out.Plan.Actions)
	require.Len(t, out.Plan.ManualReview, 1)
	assert.Equal(t, rep.ID, out.Plan.ManualReview[0].RepresentativeID)
	assert.Zero(t, out.Execution.Failed)
	assert.Zero(t, out.Execution.Applied)
	assert.True(t, cachedDebt(t, s, rep.ID).Equal(d("75000")))

	detail, err := e.Status(ctx, out.Run.ID)
	require.NoError(t, err)

	for _, a := range detail.Actions {
		assert.NotEqual(t, ledger.ActionApplied, a.Status)
	}

	again, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeDry})
	require.NoError(t, err)
	assert.Equal(t, ledger.RunWarn, again.Run.Status, "representative stays flagged")
}

func TestEngine_LowConfidenceIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	rep := s.SeedRepresentative("R1", d("100"))

	e, _ := newEngine(t, s, engineOpts{confidence: 92})

	out, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Execution.Skipped)
	assert.Equal(t, 1, out.Execution.Applied)
	assert.Equal(t, ledger.ActionSkipped, out.Execution.Results[0].Status)
	assert.Contains(t, out.Execution.Results[0].Reason, "confidence 90")
	assert.True(t, cachedDebt(t, s, rep.ID).Equal(d("100")))
}

type faultyStore struct {
	*memstore.Store
	failFor uuid.UUID
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx ledger.Tx) error {
		return fn(&faultyTx{Tx: tx, failFor: f.failFor})
	})
}

type faultyTx struct {
	ledger.Tx
	failFor uuid.UUID
}

func (f *faultyTx) SetCachedDebt(ctx context.Context, id uuid.UUID, debt decimal.Decimal) error {
	if id == f.failFor {
		return errors.New("row is locked by a maintenance job")
	}

	return f.Tx.SetCachedDebt(ctx, id, debt)
}

func TestEngine_FailedActionDoesNotStopTheBatch(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	bad := mem.SeedRepresentative("A", d("900"))
	good := mem.SeedRepresentative("B", d("100"))

	s := &faultyStore{Store: mem, failFor: bad.ID}
	e, _ := newEngine(t, s, engineOpts{})

	out, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce})
	require.NoError(t, err)

	assert.Equal(t, ledger.RunPartiallyFailed, out.Run.Status)
	assert.Equal(t, 1, out.Execution.Failed)
	assert.Equal(t, 3, out.Execution.Applied)
	assert.False(t, out.Execution.Success())
	assert.True(t, cachedDebt(t, mem, good.ID).IsZero())
	assert.True(t, cachedDebt(t, mem, bad.ID).Equal(d("900")))

	detail, err := e.Status(ctx, out.Run.ID)
	require.NoError(t, err)
	require.Len(t, detail.Actions, 4)
	assert.Equal(t, ledger.ActionFailed, detail.Actions[0].Status)
	assert.Contains(t, detail.Actions[0].Reason, "maintenance job")
	assert.Nil(t, detail.Actions[0].AppliedAt)
}

func TestEngine_RecalculatesInvoiceStatus(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	rep := s.SeedRepresentative("R1", decimal.Zero)
	inv := s.SeedInvoice(rep.ID, d("100"), day)
	s.SeedAllocatedPayment(rep.ID, inv.ID, d("100"), day)

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.UpdateInvoiceStatus(ctx, inv.ID, ledger.StatusUnpaid)
	}))

	e, _ := newEngine(t, s, engineOpts{})

	out, err := e.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce})
	require.NoError(t, err)

	require.Len(t, out.Plan.Actions, 1)
	assert.Equal(t, ledger.ActionRecalculateBalance, out.Plan.Actions[0].Type)
	assert.Equal(t, ledger.RunCompleted, out.Run.Status)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, got.Status)
}

func TestEngine_EnforceRequiresLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	locker := lock.NewMockLocker(ctrl)
	locker.EXPECT().
		Obtain(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, lock.ErrNotObtained)

	e, _ := newEngine(t, memstore.New(), engineOpts{locker: locker})

	_, err := e.Run(context.Background(), reconcile.Options{Mode: ledger.ModeEnforce})
	assert.ErrorIs(t, err, reconcile.ErrRunInProgress)
}

func TestEngine_EnforceReleasesLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	held := lock.NewMockLock(ctrl)
	held.EXPECT().Release(gomock.Any()).Return(nil)

	locker := lock.NewMockLocker(ctrl)
	locker.EXPECT().Obtain(gomock.Any(), gomock.Any(), gomock.Any()).Return(held, nil)

	e, _ := newEngine(t, memstore.New(), engineOpts{locker: locker})

	out, err := e.Run(context.Background(), reconcile.Options{Mode: ledger.ModeEnforce})
	require.NoError(t, err)
	assert.Equal(t, ledger.RunOK, out.Run.Status)
}

func TestEngine_InvalidOptions(t *testing.T) {
	e, _ := newEngine(t, memstore.New(), engineOpts{})

	_, err := e.Run(context.Background(), reconcile.Options{Mode: "auto"})
	assert.ErrorIs(t, err, reconcile.ErrInvalidMode)

	_, err = e.Run(context.Background(), reconcile.Options{Threshold: new(d("-0.1"))})
	assert.ErrorIs(t, err, reconcile.ErrInvalidThreshold)
}

func TestEngine_CancelStaleRun(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	rep := s.SeedRepresentative("R1", d("10"))

	run := &ledger.Run{Mode: ledger.ModeEnforce, Status: ledger.RunExecuting}
	action := &ledger.RepairAction{
		Seq:        1,
		Type:       ledger.ActionAdjustDebt,
		TargetType: ledger.TargetRepresentative,
		TargetID:   rep.ID,
		Status:     ledger.ActionPending,
		Confidence: 90,
	}

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}

		action.RunID = run.ID

		return tx.CreateActions(ctx, []*ledger.RepairAction{action})
	}))

	e, _ := newEngine(t, s, engineOpts{})

	got, err := e.Cancel(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunCancelled, got.Status)

	detail, err := e.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionCancelled, detail.Actions[0].Status)

	_, err = e.Cancel(ctx, run.ID)
	assert.ErrorIs(t, err, reconcile.ErrNotCancellable)

	_, err = e.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestExecutor_CancelledBetweenActions(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	a := s.SeedRepresentative("A", d("10"))
	b := s.SeedRepresentative("B", d("20"))

	report, err := reconcile.NewDetector(s, batch.Options{}).Detect(ctx, nil, d("0.005"), nil)
	require.NoError(t, err)

	plan := reconcile.NewPlanner(d("50000")).Plan(report, ledger.ModeEnforce)
	require.Len(t, plan.Actions, 4)

	run := &ledger.Run{Mode: ledger.ModeEnforce, Status: ledger.RunExecuting}
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}

		for _, act := range plan.Actions {
			act.RunID = run.ID
		}

		return tx.CreateActions(ctx, plan.Actions)
	}))

	c, err := cache.New(cache.Options{TTL: time.Minute, MaxEntries: 10})
	require.NoError(t, err)

	calls := 0
	exec := reconcile.NewExecutor(s, c, nil, reconcile.ExecutorOptions{ConfidenceThreshold: 85, MaxAdjustment: d("50000")})

	out, err := exec.Execute(ctx, run, plan.Actions[:1], func() bool { calls++; return calls > 1 })
	require.NoError(t, err)
	assert.Equal(t, 1, out.Applied)

	out, err = exec.Execute(ctx, run, plan.Actions[2:], func() bool { return true })
	require.NoError(t, err)

	assert.Equal(t, 2, out.Cancelled)
	assert.Zero(t, out.Applied)
	assert.True(t, cachedDebt(t, s, b.ID).IsZero())
	assert.True(t, cachedDebt(t, s, a.ID).Equal(d("10")))
}

func TestEngine_StartRunsAsJob(t *testing.T) {
	s := memstore.New()
	s.SeedRepresentative("R1", d("10"))

	c, err := cache.New(cache.Options{TTL: time.Hour, MaxEntries: 100})
	require.NoError(t, err)

	jobs := job.NewManager()
	e := reconcile.NewEngine(s, c, lock.NewLocal(), jobs, reconcile.EngineOptions{
		DriftThreshold:      d("0.005"),
		ConfidenceThreshold: 85,
		MaxAdjustment:       d("50000"),
	})

	id, err := e.Start(reconcile.Options{Mode: ledger.ModeDry})
	require.NoError(t, err)

	jobs.Wait()

	st, err := jobs.Get(id)
	require.NoError(t, err)
	require.Equal(t, job.StateCompleted, st.State)

	out, ok := st.Result.(*reconcile.Outcome)
	require.True(t, ok)
	assert.Equal(t, ledger.RunWarn, out.Run.Status)
	assert.Equal(t, 1, st.TotalBatches)
}

func TestEngine_EnforceRefreshesLock(t *testing.T) {
	type testCase struct {
		name       string
		refreshErr error
		want       ledger.RunStatus
	}

	tests := []testCase{
		{name: "Refreshed", want: ledger.RunCompleted},
		{name: "TransientError", refreshErr: errors.New("i/o timeout"), want: ledger.RunCompleted},
		{name: "Lost", refreshErr: lock.ErrNotObtained, want: ledger.RunCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			s := memstore.New()
			rep := s.SeedRepresentative("A", d("10"))

			held := lock.NewMockLock(ctrl)
			held.EXPECT().Refresh(gomock.Any(), 10*time.Minute).Return(tt.refreshErr).MinTimes(1)
			held.EXPECT().Release(gomock.Any()).Return(nil)

			locker := lock.NewMockLocker(ctrl)
			locker.EXPECT().Obtain(gomock.Any(), gomock.Any(), 10*time.Minute).Return(held, nil)

			e, _ := newEngine(t, s, engineOpts{locker: locker})

			out, err := e.Run(context.Background(), reconcile.Options{Mode: ledger.ModeEnforce})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Run.Status)

			if tt.want == ledger.RunCancelled {
				assert.True(t, cachedDebt(t, s, rep.ID).Equal(d("10")), "a run without its lock repairs nothing")
				return
			}

			assert.True(t, cachedDebt(t, s, rep.ID).IsZero())
		})
	}
}

// hookStore calls after once every committed transaction.
type hookStore struct {
	*memstore.Store
	after func()
}

func (h *hookStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := h.Store.WithTx(ctx, fn); err != nil {
		return err
	}

	h.after()

	return nil
}

func actionsIn(actions []*ledger.RepairAction, status ledger.ActionStatus) int {
	n := 0

	for _, a := range actions {
		if a.Status == status {
			n++
		}
	}

	return n
}

func TestEngine_CancelFromAnotherProcess(t *testing.T) {
	type testCase struct {
		name       string
		staleAfter time.Duration
		wantStatus ledger.RunStatus
	}

	tests := []testCase{
		{name: "LiveOwnerStopsItself", wantStatus: ledger.RunExecuting},
		{name: "StaleOwnerIsClosed", staleAfter: time.Nanosecond, wantStatus: ledger.RunCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := memstore.New()

			a := mem.SeedRepresentative("A", d("10"))
			b := mem.SeedRepresentative("B", d("20"))

			other, _ := newEngine(t, mem, engineOpts{staleAfter: tt.staleAfter})

			var (
				fired     bool
				cancelled *ledger.Run
			)

			hs := &hookStore{Store: mem}
			hs.after = func() {
				if fired {
					return
				}

				runs, err := mem.ListRuns(ctx, 1, 0)
				require.NoError(t, err)

				if len(runs) == 0 || runs[0].Status != ledger.RunExecuting {
					return
				}

				actions, err := mem.ListActions(ctx, runs[0].ID)
				require.NoError(t, err)

				if !slices.ContainsFunc(actions, func(a *ledger.RepairAction) bool { return a.Status == ledger.ActionApplied }) {
					return
				}

				fired = true

				cancelled, err = other.Cancel(ctx, runs[0].ID)
				require.NoError(t, err)
			}

			owner, _ := newEngine(t, hs, engineOpts{})

			out, err := owner.Run(ctx, reconcile.Options{Mode: ledger.ModeEnforce})
			require.NoError(t, err)

			require.True(t, fired)
			assert.Equal(t, tt.wantStatus, cancelled.Status)
			assert.Equal(t, ledger.RunCancelled, out.Run.Status)

			detail, err := owner.Status(ctx, out.Run.ID)
			require.NoError(t, err)
			assert.Equal(t, ledger.RunCancelled, detail.Run.Status, "the owner never reopens a cancelled run")
			assert.Equal(t, tt.staleAfter == 0, cancelled.CancelRequested)
			require.Len(t, detail.Actions, 4)
			assert.Equal(t, 1, actionsIn(detail.Actions, ledger.ActionApplied))
			assert.Equal(t, 3, actionsIn(detail.Actions, ledger.ActionCancelled))

			repaired := 0

			for _, id := range []uuid.UUID{a.ID, b.ID} {
				if cachedDebt(t, mem, id).IsZero() {
					repaired++
				}
			}

			assert.Equal(t, 1, repaired)
		})
	}
}
