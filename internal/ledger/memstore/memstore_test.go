package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger/memstore"
)

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	rep := s.SeedRepresentative("R1", decimal.NewFromInt(100))

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.SetCachedDebt(ctx, rep.ID, decimal.NewFromInt(5)); err != nil {
			return err
		}

		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := s.GetRepresentative(ctx, rep.ID)
	require.NoError(t, err)
	assert.True(t, got.CachedDebt.Equal(decimal.NewFromInt(100)))
}

func TestStore_Totals(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a := s.SeedRepresentative("A", decimal.Zero)
	b := s.SeedRepresentative("B", decimal.Zero)

	inv := s.SeedInvoice(a.ID, decimal.NewFromInt(300), day)
	s.SeedInvoice(a.ID, decimal.NewFromInt(200), day)
	s.SeedAllocatedPayment(a.ID, inv.ID, decimal.NewFromInt(120), day)
	s.SeedPayment(a.ID, decimal.NewFromInt(999), day)

	totals, err := s.Totals(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.True(t, totals[a.ID].Invoiced.Equal(decimal.NewFromInt(500)))
	assert.True(t, totals[a.ID].Allocated.Equal(decimal.NewFromInt(120)))
	assert.True(t, totals[b.ID].Invoiced.IsZero())
}

func TestStore_SetCachedDebtRejectsNegative(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	rep := s.SeedRepresentative("R1", decimal.Zero)

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.SetCachedDebt(ctx, rep.ID, decimal.NewFromInt(-1))
	})
	assert.ErrorIs(t, err, ledger.ErrInvalid)
}

func TestStore_OrphanedPayments(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a := s.SeedRepresentative("A", decimal.Zero)
	b := s.SeedRepresentative("B", decimal.Zero)
	foreign := s.SeedInvoice(b.ID, decimal.NewFromInt(50), day)
	p := s.SeedAllocatedPayment(a.ID, foreign.ID, decimal.NewFromInt(10), day)

	orphans, err := s.OrphanedPayments(ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, p.ID, orphans[0].Payment.ID)
	assert.Equal(t, ledger.OrphanForeignInvoice, orphans[0].Reason)
}

func TestStore_UpdateRunKeepsCancellation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	beat := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	run := &ledger.Run{Mode: ledger.ModeEnforce, Status: ledger.RunExecuting}
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error { return tx.CreateRun(ctx, run) }))

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		got, err := tx.HeartbeatRun(ctx, run.ID, beat)
		if err != nil {
			return err
		}

		got.CancelRequested = true

		return tx.UpdateRun(ctx, got)
	}))

	stale := *run
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateRun(ctx, &stale) }))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested, "a stale copy never clears the request")
	require.NotNil(t, got.HeartbeatAt)
	assert.True(t, got.HeartbeatAt.Equal(beat))

	got.Status = ledger.RunCancelled
	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateRun(ctx, got) }))

	stale.Status = ledger.RunCompleted
	err = s.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateRun(ctx, &stale) })
	assert.ErrorIs(t, err, ledger.ErrRunClosed)

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunCancelled, got.Status)

	_, err = memstore.New().GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
