package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

func (q queries) PaymentStats(ctx context.Context) (ledger.PaymentStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_allocated),
			COUNT(*) FILTER (WHERE NOT is_allocated),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE is_allocated), 0),
			COALESCE(SUM(amount) FILTER (WHERE NOT is_allocated), 0),
			MAX(allocated_at)
		FROM payments
	`

	var s ledger.PaymentStats

	err := q.q.QueryRowContext(ctx, query).Scan(
		&s.Total, &s.Allocated, &s.Unallocated,
		&s.TotalAmount, &s.AllocatedAmount, &s.UnallocatedAmount,
		&s.LastAllocationAt,
	)
	if err != nil {
		return ledger.PaymentStats{}, fmt.Errorf("aggregating payment stats: %w", err)
	}

	return s, nil
}

func (q queries) DailyAllocations(ctx context.Context, since time.Time) ([]ledger.DailyAllocation, error) {
	query := `
		WITH created AS (
			SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*) AS n
			FROM payments
			WHERE created_at >= $1
			GROUP BY 1
		), allocated AS (
			SELECT date_trunc('day', allocated_at AT TIME ZONE 'UTC') AS day, COUNT(*) AS n, SUM(amount) AS amount
			FROM payments
			WHERE is_allocated AND allocated_at >= $1
			GROUP BY 1
		)
		SELECT COALESCE(c.day, a.day), COALESCE(c.n, 0), COALESCE(a.n, 0), COALESCE(a.amount, 0)
		FROM created c
		FULL OUTER JOIN allocated a ON a.day = c.day
		ORDER BY 1 ASC
	`

	y, m, d := since.UTC().Date()

	rows, err := q.q.QueryContext(ctx, query, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, fmt.Errorf("aggregating daily allocations: %w", err)
	}
	defer rows.Close()

	var days []ledger.DailyAllocation

	for rows.Next() {
		var day ledger.DailyAllocation

		if err := rows.Scan(&day.Day, &day.Created, &day.Allocated, &day.AllocatedAmount); err != nil {
			return nil, fmt.Errorf("scanning daily allocation: %w", err)
		}

		day.Day = day.Day.UTC()
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily allocations: %w", err)
	}

	return days, nil
}

func (q queries) UnallocatedByRepresentative(ctx context.Context, over, limit int) ([]ledger.Backlog, error) {
	query := `
		SELECT r.id, r.code, r.name, COUNT(p.id), COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN representatives r ON r.id = p.representative_id
		WHERE NOT p.is_allocated
		GROUP BY r.id
		HAVING COUNT(p.id) > $1
		ORDER BY COUNT(p.id) DESC, SUM(p.amount) DESC, r.id ASC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 10
	}

	rows, err := q.q.QueryContext(ctx, query, over, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregating unallocated backlog: %w", err)
	}
	defer rows.Close()

	var backlog []ledger.Backlog

	for rows.Next() {
		var b ledger.Backlog

		if err := rows.Scan(&b.RepresentativeID, &b.Code, &b.Name, &b.Count, &b.Amount); err != nil {
			return nil, fmt.Errorf("scanning backlog: %w", err)
		}

		backlog = append(backlog, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backlog: %w", err)
	}

	return backlog, nil
}
