package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

const selectRunColumns = `
	id, mode, scope, threshold, status, total_cached, total_ledger, total_drift, drift_ratio,
	anomaly_count, risk, applied, failed, skipped, actor, error, started_at, finished_at,
	heartbeat_at, cancel_requested
`

func scanRun(s scanner) (*ledger.Run, error) {
	var r ledger.Run

	var mode, status, risk string

	var scope []byte

	if err := s.Scan(
		&r.ID, &mode, &scope, &r.Threshold, &status, &r.TotalCached, &r.TotalLedger, &r.TotalDrift, &r.DriftRatio,
		&r.AnomalyCount, &risk, &r.Applied, &r.Failed, &r.Skipped, &r.Actor, &r.Error, &r.StartedAt, &r.FinishedAt,
		&r.HeartbeatAt, &r.CancelRequested,
	); err != nil {
		return nil, err
	}

	r.Mode = ledger.Mode(mode)
	r.Status = ledger.RunStatus(status)
	r.Risk = ledger.RiskLevel(risk)

	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &r.Scope); err != nil {
			return nil, fmt.Errorf("decoding run scope: %w", err)
		}
	}

	return &r, nil
}

func encodeScope(scope []uuid.UUID) ([]byte, error) {
	if scope == nil {
		scope = []uuid.UUID{}
	}

	return json.Marshal(scope)
}

func (q queries) GetRun(ctx context.Context, id uuid.UUID) (*ledger.Run, error) {
	query := `SELECT ` + selectRunColumns + ` FROM reconciliation_runs WHERE id = $1`

	run, err := scanRun(q.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "run", id)
	}

	return run, nil
}

func (q queries) ListRuns(ctx context.Context, limit, offset int) ([]*ledger.Run, error) {
	query := `SELECT ` + selectRunColumns + `
		FROM reconciliation_runs
		ORDER BY started_at DESC, id ASC
		LIMIT $1 OFFSET $2`

	if limit <= 0 {
		limit = 50
	}

	rows, err := q.q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*ledger.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

func (t *tx) CreateRun(ctx context.Context, run *ledger.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	scope, err := encodeScope(run.Scope)
	if err != nil {
		return fmt.Errorf("encoding run scope: %w", err)
	}

	query := `
		INSERT INTO reconciliation_runs (id, mode, scope, threshold, status, actor, started_at, heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
		RETURNING started_at
	`

	err = t.q.QueryRowContext(ctx, query, run.ID, run.Mode, scope, run.Threshold, run.Status, run.Actor, run.HeartbeatAt).
		Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	return nil
}

func (t *tx) UpdateRun(ctx context.Context, run *ledger.Run) error {
	query := `
		UPDATE reconciliation_runs
		SET status = $1, total_cached = $2, total_ledger = $3, total_drift = $4, drift_ratio = $5,
			anomaly_count = $6, risk = $7, applied = $8, failed = $9, skipped = $10, error = $11, finished_at = $12,
			cancel_requested = cancel_requested OR $13::BOOLEAN,
			heartbeat_at = GREATEST(heartbeat_at, $14::TIMESTAMPTZ)
		WHERE id = $15 AND (status <> 'CANCELLED' OR $1 = 'CANCELLED')
	`

	res, err := t.q.ExecContext(ctx, query,
		run.Status,
		run.TotalCached,
		run.TotalLedger,
		run.TotalDrift,
		run.DriftRatio,
		run.AnomalyCount,
		run.Risk,
		run.Applied,
		run.Failed,
		run.Skipped,
		run.Error,
		run.FinishedAt,
		run.CancelRequested,
		run.HeartbeatAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting affected rows: %w", err)
	}

	if n > 0 {
		return nil
	}

	if _, err := t.GetRun(ctx, run.ID); err != nil {
		return err
	}

	return fmt.Errorf("run %s: %w", run.ID, ledger.ErrRunClosed)
}

func (t *tx) HeartbeatRun(ctx context.Context, id uuid.UUID, at time.Time) (*ledger.Run, error) {
	query := `UPDATE reconciliation_runs SET heartbeat_at = $1 WHERE id = $2 RETURNING ` + selectRunColumns

	run, err := scanRun(t.q.QueryRowContext(ctx, query, at, id))
	if err != nil {
		return nil, notFound(err, "run", id)
	}

	return run, nil
}

const selectActionColumns = `
	id, run_id, seq, type, target_type, target_id, current_value, expected_value, adjustment,
	confidence, status, reason, applied_at, created_at
`

func (q queries) ListActions(ctx context.Context, runID uuid.UUID) ([]*ledger.RepairAction, error) {
	query := `SELECT ` + selectActionColumns + ` FROM repair_actions WHERE run_id = $1 ORDER BY seq ASC`

	rows, err := q.q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("listing repair actions: %w", err)
	}
	defer rows.Close()

	var actions []*ledger.RepairAction

	for rows.Next() {
		var a ledger.RepairAction

		var typ, target, status string

		if err := rows.Scan(
			&a.ID, &a.RunID, &a.Seq, &typ, &target, &a.TargetID, &a.Current, &a.Expected, &a.Adjustment,
			&a.Confidence, &status, &a.Reason, &a.AppliedAt, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning repair action: %w", err)
		}

		a.Type = ledger.ActionType(typ)
		a.TargetType = ledger.TargetType(target)
		a.Status = ledger.ActionStatus(status)
		actions = append(actions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repair actions: %w", err)
	}

	return actions, nil
}

func (t *tx) CreateActions(ctx context.Context, actions []*ledger.RepairAction) error {
	query := `
		INSERT INTO repair_actions (id, run_id, seq, type, target_type, target_id, current_value, expected_value,
			adjustment, confidence, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	for _, a := range actions {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}

		err := t.q.QueryRowContext(ctx, query,
			a.ID, a.RunID, a.Seq, a.Type, a.TargetType, a.TargetID, a.Current, a.Expected,
			a.Adjustment, a.Confidence, a.Status, a.Reason,
		).Scan(&a.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating repair action: %w", err)
		}
	}

	return nil
}

func (t *tx) UpdateAction(ctx context.Context, action *ledger.RepairAction) error {
	query := `
		UPDATE repair_actions
		SET status = $1, reason = $2, applied_at = $3, expected_value = $4, adjustment = $5
		WHERE id = $6
	`

	res, err := t.q.ExecContext(ctx, query,
		action.Status, action.Reason, action.AppliedAt, action.Expected, action.Adjustment, action.ID,
	)
	if err != nil {
		return fmt.Errorf("updating repair action: %w", err)
	}

	return expectOne(res, "repair action", action.ID)
}
