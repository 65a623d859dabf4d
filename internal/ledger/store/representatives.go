package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

const selectRepresentativeColumns = `r.id, r.code, r.name, r.active, r.cached_debt, r.created_at, r.updated_at`

// Expected column order: id, code, name, active, cached_debt, created_at, updated_at
func scanRepresentative(s scanner) (*ledger.Representative, error) {
	var r ledger.Representative

	if err := s.Scan(&r.ID, &r.Code, &r.Name, &r.Active, &r.CachedDebt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	return &r, nil
}

func (q queries) GetRepresentative(ctx context.Context, id uuid.UUID) (*ledger.Representative, error) {
	query := `SELECT ` + selectRepresentativeColumns + ` FROM representatives r WHERE r.id = $1`

	rep, err := scanRepresentative(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "representative", id)
	}

	return rep, nil
}

func (q queries) ListRepresentatives(ctx context.Context, filter ledger.RepresentativeFilter) ([]*ledger.Representative, error) {
	query := `SELECT ` + selectRepresentativeColumns + ` FROM representatives r WHERE TRUE`

	var args []any

	argIdx := 1

	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(" AND r.id = ANY($%d::uuid[])", argIdx)

		args = append(args, uuidStrings(filter.IDs))
		argIdx++
	}

	if filter.ActiveOnly {
		query += " AND r.active"
	}

	query += " ORDER BY r.code ASC, r.id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}
	defer rows.Close()

	var reps []*ledger.Representative

	for rows.Next() {
		rep, err := scanRepresentative(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning representative: %w", err)
		}

		reps = append(reps, rep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating representatives: %w", err)
	}

	return reps, nil
}

// Totals aggregates invoiced and allocated amounts for all ids in a single
// round trip.
func (q queries) Totals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Totals, error) {
	totals := make(map[uuid.UUID]ledger.Totals, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	query := `
		SELECT r.id,
			COALESCE(inv.total, 0),
			COALESCE(pay.total, 0)
		FROM representatives r
		LEFT JOIN (
			SELECT representative_id, SUM(amount) AS total
			FROM invoices
			WHERE representative_id = ANY($1::uuid[])
			GROUP BY representative_id
		) inv ON inv.representative_id = r.id
		LEFT JOIN (
			SELECT representative_id, SUM(amount) AS total
			FROM payments
			WHERE is_allocated AND representative_id = ANY($1::uuid[])
			GROUP BY representative_id
		) pay ON pay.representative_id = r.id
		WHERE r.id = ANY($1::uuid[])
	`

	rows, err := q.q.QueryContext(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("aggregating totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t ledger.Totals

		if err := rows.Scan(&t.RepresentativeID, &t.Invoiced, &t.Allocated); err != nil {
			return nil, fmt.Errorf("scanning totals: %w", err)
		}

		totals[t.RepresentativeID] = t
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating totals: %w", err)
	}

	return totals, nil
}

func (t *tx) CreateRepresentative(ctx context.Context, rep *ledger.Representative) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	query := `
		INSERT INTO representatives (id, code, name, active, cached_debt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := t.q.QueryRowContext(ctx, query, rep.ID, rep.Code, rep.Name, rep.Active, rep.CachedDebt).
		Scan(&rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating representative: %w", err)
	}

	return nil
}

func (t *tx) SetCachedDebt(ctx context.Context, id uuid.UUID, debt decimal.Decimal) error {
	if debt.IsNegative() {
		return fmt.Errorf("cached debt %s: %w", debt, ledger.ErrInvalid)
	}

	res, err := t.q.ExecContext(ctx,
		`UPDATE representatives SET cached_debt = $1, updated_at = NOW() WHERE id = $2`,
		debt, id,
	)
	if err != nil {
		return fmt.Errorf("updating cached debt: %w", err)
	}

	return expectOne(res, "representative", id)
}
