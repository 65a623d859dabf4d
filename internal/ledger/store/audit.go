package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

func (q queries) ListAllocationLines(ctx context.Context, filter ledger.LineFilter) ([]*ledger.AllocationLine, error) {
	query := `
		SELECT id, payment_id, invoice_id, representative_id, amount, method, synthetic, actor, created_at
		FROM allocation_lines
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.RepresentativeID != nil {
		query += fmt.Sprintf(" AND representative_id = $%d", argIdx)

		args = append(args, *filter.RepresentativeID)
		argIdx++
	}

	if filter.PaymentID != nil {
		query += fmt.Sprintf(" AND payment_id = $%d", argIdx)

		args = append(args, *filter.PaymentID)
		argIdx++
	}

	if filter.InvoiceID != nil {
		query += fmt.Sprintf(" AND invoice_id = $%d", argIdx)

		args = append(args, *filter.InvoiceID)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing allocation lines: %w", err)
	}
	defer rows.Close()

	var lines []*ledger.AllocationLine

	for rows.Next() {
		var l ledger.AllocationLine

		var method string

		if err := rows.Scan(
			&l.ID, &l.PaymentID, &l.InvoiceID, &l.RepresentativeID, &l.Amount,
			&method, &l.Synthetic, &l.Actor, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning allocation line: %w", err)
		}

		l.Method = ledger.Method(method)
		lines = append(lines, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating allocation lines: %w", err)
	}

	return lines, nil
}

func (t *tx) AppendAllocationLine(ctx context.Context, line *ledger.AllocationLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}

	query := `
		INSERT INTO allocation_lines (id, payment_id, invoice_id, representative_id, amount, method, synthetic, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	err := t.q.QueryRowContext(ctx, query,
		line.ID,
		line.PaymentID,
		line.InvoiceID,
		line.RepresentativeID,
		line.Amount,
		line.Method,
		line.Synthetic,
		line.Actor,
	).Scan(&line.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending allocation line: %w", err)
	}

	return nil
}

func (q queries) ListAudit(ctx context.Context, filter ledger.AuditFilter) ([]*ledger.AuditRecord, error) {
	query := `
		SELECT id, kind, representative_id, run_id, actor, before_state, after_state, created_at
		FROM audit_records
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.RepresentativeID != nil {
		query += fmt.Sprintf(" AND representative_id = $%d", argIdx)

		args = append(args, *filter.RepresentativeID)
		argIdx++
	}

	if filter.RunID != nil {
		query += fmt.Sprintf(" AND run_id = $%d", argIdx)

		args = append(args, *filter.RunID)
		argIdx++
	}

	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)

		args = append(args, *filter.Kind)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var records []*ledger.AuditRecord

	for rows.Next() {
		var a ledger.AuditRecord

		var kind string

		var before, after []byte

		if err := rows.Scan(&a.ID, &kind, &a.RepresentativeID, &a.RunID, &a.Actor, &before, &after, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}

		a.Kind = ledger.AuditKind(kind)
		a.Before, a.After = before, after
		records = append(records, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	return records, nil
}

func (t *tx) AppendAudit(ctx context.Context, rec *ledger.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO audit_records (id, kind, representative_id, run_id, actor, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	err := t.q.QueryRowContext(ctx, query,
		rec.ID,
		rec.Kind,
		rec.RepresentativeID,
		rec.RunID,
		rec.Actor,
		[]byte(rec.Before),
		[]byte(rec.After),
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}

	return nil
}
