package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// The Seed helpers insert fixtures outside of any service and panic on
// failure. They exist for tests and local dry runs.

func (s *Store) SeedRepresentative(code string, cachedDebt decimal.Decimal) *ledger.Representative {
	rep := &ledger.Representative{Code: code, Name: "Representative " + code, Active: true, CachedDebt: cachedDebt}
	s.mustTx(func(tx ledger.Tx) error { return tx.CreateRepresentative(context.Background(), rep) })

	return rep
}

func (s *Store) SeedInvoice(repID uuid.UUID, amount decimal.Decimal, issued time.Time) *ledger.Invoice {
	inv := &ledger.Invoice{
		RepresentativeID: repID,
		Number:           fmt.Sprintf("INV-%s", uuid.NewString()[:8]),
		Amount:           amount,
		IssueDate:        issued,
		Status:           ledger.StatusUnpaid,
	}
	s.mustTx(func(tx ledger.Tx) error { return tx.CreateInvoice(context.Background(), inv) })

	return inv
}

func (s *Store) SeedPayment(repID uuid.UUID, amount decimal.Decimal, paid time.Time) *ledger.Payment {
	p := &ledger.Payment{RepresentativeID: repID, Amount: amount, PaymentDate: paid}
	s.mustTx(func(tx ledger.Tx) error { return tx.CreatePayment(context.Background(), p) })

	return p
}

// SeedAllocatedPayment inserts a payment already allocated to invoiceID.
func (s *Store) SeedAllocatedPayment(repID, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) *ledger.Payment {
	p := &ledger.Payment{RepresentativeID: repID, Amount: amount, PaymentDate: at}
	s.mustTx(func(tx ledger.Tx) error {
		ctx := context.Background()

		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}

		if err := tx.MarkPaymentAllocated(ctx, p.ID, invoiceID, amount, at); err != nil {
			return err
		}

		bal, err := tx.InvoiceBalances(ctx, ledger.InvoiceFilter{IDs: []uuid.UUID{invoiceID}})
		if err != nil || len(bal) == 0 {
			return err
		}

		return tx.UpdateInvoiceStatus(ctx, invoiceID, bal[0].DerivedStatus())
	})

	p.InvoiceID = new(invoiceID)
	p.IsAllocated = true
	p.AllocatedAt = new(at)

	return p
}

// CorruptCachedDebt overwrites a cached debt without any audit trail.
func (s *Store) CorruptCachedDebt(repID uuid.UUID, debt decimal.Decimal) {
	s.mustTx(func(tx ledger.Tx) error { return tx.SetCachedDebt(context.Background(), repID, debt) })
}

func (s *Store) mustTx(fn func(tx ledger.Tx) error) {
	if err := s.WithTx(context.Background(), fn); err != nil {
		panic(fmt.Sprintf("memstore seed: %v", err))
	}
}
