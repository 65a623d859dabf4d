package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

const selectInvoiceColumns = `
	i.id, i.representative_id, i.number, i.amount, i.issue_date, i.due_date, i.status, i.created_at
`

// Expected column order: id, representative_id, number, amount, issue_date, due_date, status, created_at
func scanInvoice(s scanner, extra ...any) (*ledger.Invoice, error) {
	var inv ledger.Invoice

	var status string

	dest := []any{
		&inv.ID, &inv.RepresentativeID, &inv.Number, &inv.Amount,
		&inv.IssueDate, &inv.DueDate, &status, &inv.CreatedAt,
	}

	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	inv.Status = ledger.InvoiceStatus(status)

	return &inv, nil
}

func invoiceWhere(filter ledger.InvoiceFilter) (string, []any) {
	where := " WHERE TRUE"

	var args []any

	argIdx := 1

	if len(filter.IDs) > 0 {
		where += fmt.Sprintf(" AND i.id = ANY($%d::uuid[])", argIdx)

		args = append(args, uuidStrings(filter.IDs))
		argIdx++
	}

	if len(filter.RepresentativeIDs) > 0 {
		where += fmt.Sprintf(" AND i.representative_id = ANY($%d::uuid[])", argIdx)

		args = append(args, uuidStrings(filter.RepresentativeIDs))
		argIdx++
	}

	if len(filter.Statuses) > 0 {
		where += fmt.Sprintf(" AND i.status = ANY($%d::text[])", argIdx)

		args = append(args, statusStrings(filter.Statuses))
		argIdx++
	}

	if filter.IssueDate != nil {
		where += fmt.Sprintf(" AND i.issue_date = $%d::date", argIdx)

		args = append(args, filter.IssueDate.Format(time.DateOnly))
		argIdx++
	}

	return where, args
}

func (q queries) GetInvoice(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + ` FROM invoices i WHERE i.id = $1`

	inv, err := scanInvoice(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}

	return inv, nil
}

func (q queries) ListInvoices(ctx context.Context, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	where, args := invoiceWhere(filter)
	query := `SELECT ` + selectInvoiceColumns + ` FROM invoices i` + where + ` ORDER BY i.issue_date ASC, i.id ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*ledger.Invoice

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}

		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoices: %w", err)
	}

	return invoices, nil
}

// InvoiceBalances returns the matching invoices together with the sum of
// allocated payments linked to each, computed in one grouped query.
func (q queries) InvoiceBalances(ctx context.Context, filter ledger.InvoiceFilter) ([]ledger.InvoiceBalance, error) {
	where, args := invoiceWhere(filter)
	query := `SELECT ` + selectInvoiceColumns + `,
			COALESCE(SUM(p.amount) FILTER (WHERE p.is_allocated), 0),
			COUNT(p.id) FILTER (WHERE p.is_allocated)
		FROM invoices i
		LEFT JOIN payments p ON p.invoice_id = i.id` + where + `
		GROUP BY i.id
		ORDER BY i.issue_date ASC, i.id ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoice balances: %w", err)
	}
	defer rows.Close()

	var balances []ledger.InvoiceBalance

	for rows.Next() {
		var b ledger.InvoiceBalance

		inv, err := scanInvoice(rows, &b.Allocated, &b.Payments)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice balance: %w", err)
		}

		b.Invoice = inv
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoice balances: %w", err)
	}

	return balances, nil
}

func (t *tx) CreateInvoice(ctx context.Context, inv *ledger.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	if inv.Status == "" {
		inv.Status = ledger.StatusUnpaid
	}

	query := `
		INSERT INTO invoices (id, representative_id, number, amount, issue_date, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	err := t.q.QueryRowContext(ctx, query,
		inv.ID,
		inv.RepresentativeID,
		inv.Number,
		inv.Amount,
		inv.IssueDate,
		inv.DueDate,
		inv.Status,
	).Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}

	return nil
}

func (t *tx) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status ledger.InvoiceStatus) error {
	res, err := t.q.ExecContext(ctx, `UPDATE invoices SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating invoice status: %w", err)
	}

	return expectOne(res, "invoice", id)
}

// DeleteInvoice removes the invoice row. Callers release linked payments
// first; the foreign key rejects the delete otherwise.
func (t *tx) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}

	return expectOne(res, "invoice", id)
}
