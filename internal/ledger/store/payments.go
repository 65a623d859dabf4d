package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

const selectPaymentColumns = `
	p.id, p.representative_id, p.invoice_id, p.amount, p.payment_date, p.reference,
	p.is_allocated, p.allocated_at, p.split_from, p.created_at
`

// Expected column order: id, representative_id, invoice_id, amount, payment_date, reference,
// is_allocated, allocated_at, split_from, created_at
func scanPayment(s scanner) (*ledger.Payment, error) {
	var p ledger.Payment

	if err := s.Scan(
		&p.ID, &p.RepresentativeID, &p.InvoiceID, &p.Amount, &p.PaymentDate, &p.Reference,
		&p.IsAllocated, &p.AllocatedAt, &p.SplitFrom, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &p, nil
}

func (q queries) GetPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments p WHERE p.id = $1`

	p, err := scanPayment(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}

	return p, nil
}

func (q queries) ListPayments(ctx context.Context, filter ledger.PaymentFilter) ([]*ledger.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments p WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.RepresentativeID != nil {
		query += fmt.Sprintf(" AND p.representative_id = $%d", argIdx)

		args = append(args, *filter.RepresentativeID)
		argIdx++
	}

	if filter.InvoiceID != nil {
		query += fmt.Sprintf(" AND p.invoice_id = $%d", argIdx)

		args = append(args, *filter.InvoiceID)
		argIdx++
	}

	if filter.Allocated != nil {
		query += fmt.Sprintf(" AND p.is_allocated = $%d", argIdx)

		args = append(args, *filter.Allocated)
		argIdx++
	}

	query += " ORDER BY p.payment_date ASC, p.created_at ASC, p.id ASC"

	return q.listPayments(ctx, query, args...)
}

func (q queries) listPayments(ctx context.Context, query string, args ...any) ([]*ledger.Payment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*ledger.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return payments, nil
}

func (q queries) OrphanedPayments(ctx context.Context, representativeIDs []uuid.UUID) ([]ledger.OrphanedPayment, error) {
	query := `SELECT ` + selectPaymentColumns + `,
			CASE
				WHEN p.invoice_id IS NULL THEN $1
				WHEN i.id IS NULL THEN $2
				ELSE $3
			END
		FROM payments p
		LEFT JOIN invoices i ON i.id = p.invoice_id
		WHERE p.is_allocated
			AND (p.invoice_id IS NULL OR i.id IS NULL OR i.representative_id <> p.representative_id)`

	args := []any{ledger.OrphanNoInvoice, ledger.OrphanInvoiceMissing, ledger.OrphanForeignInvoice}

	if len(representativeIDs) > 0 {
		query += " AND p.representative_id = ANY($4::uuid[])"

		args = append(args, uuidStrings(representativeIDs))
	}

	query += " ORDER BY p.id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding orphaned payments: %w", err)
	}
	defer rows.Close()

	var orphans []ledger.OrphanedPayment

	for rows.Next() {
		var p ledger.Payment

		var reason string

		if err := rows.Scan(
			&p.ID, &p.RepresentativeID, &p.InvoiceID, &p.Amount, &p.PaymentDate, &p.Reference,
			&p.IsAllocated, &p.AllocatedAt, &p.SplitFrom, &p.CreatedAt, &reason,
		); err != nil {
			return nil, fmt.Errorf("scanning orphaned payment: %w", err)
		}

		orphans = append(orphans, ledger.OrphanedPayment{Payment: &p, Reason: reason})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orphaned payments: %w", err)
	}

	return orphans, nil
}

func (t *tx) CreatePayment(ctx context.Context, p *ledger.Payment) error {
	if !p.Amount.IsPositive() {
		return fmt.Errorf("payment amount %s: %w", p.Amount, ledger.ErrInvalid)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO payments (id, representative_id, invoice_id, amount, payment_date, reference,
			is_allocated, allocated_at, split_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`

	err := t.q.QueryRowContext(ctx, query,
		p.ID,
		p.RepresentativeID,
		p.InvoiceID,
		p.Amount,
		p.PaymentDate,
		p.Reference,
		p.IsAllocated,
		p.AllocatedAt,
		p.SplitFrom,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}

	return nil
}

// MarkPaymentAllocated links the payment to an invoice and fixes its amount
// to the allocated portion.
func (t *tx) MarkPaymentAllocated(ctx context.Context, id, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	query := `
		UPDATE payments
		SET invoice_id = $1, amount = $2, is_allocated = TRUE, allocated_at = $3
		WHERE id = $4 AND NOT is_allocated
	`

	res, err := t.q.ExecContext(ctx, query, invoiceID, amount, at, id)
	if err != nil {
		return fmt.Errorf("allocating payment: %w", err)
	}

	return expectOne(res, "unallocated payment", id)
}

func (t *tx) ReleasePayment(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payments
		SET invoice_id = NULL, is_allocated = FALSE, allocated_at = NULL
		WHERE id = $1
	`

	res, err := t.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("releasing payment: %w", err)
	}

	return expectOne(res, "payment", id)
}
