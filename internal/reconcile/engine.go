package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/batch"
	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/debt"
	"github.com/MrJamesThe3rd/debtsync/internal/job"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/lock"
)

const enforceLockKey = "debtsync:reconcile:enforce"

var (
	ErrInvalidMode      = errors.New("invalid reconciliation mode")
	ErrInvalidThreshold = errors.New("invalid drift threshold")
	ErrRunInProgress    = errors.New("an enforce run is already in progress")
	ErrNotCancellable   = errors.New("run is not active")
	ErrBadTransition    = errors.New("invalid run transition")
)

// JobKind tags background runs in the job manager.
const JobKind = "reconcile"

type EngineOptions struct {
	DriftThreshold      decimal.Decimal
	ConfidenceThreshold int
	MaxAdjustment       decimal.Decimal
	LockTTL             time.Duration
	// StaleAfter is how old the heartbeat of a run owned by another process
	// must be before Cancel closes the run itself. Defaults to LockTTL.
	StaleAfter time.Duration
	Batch               batch.Options
	Now                 func() time.Time
}

// Options select what one run looks at. A nil Threshold uses the engine
// default; an empty Scope covers every active representative.
type Options struct {
	Mode      ledger.Mode
	Scope     []uuid.UUID
	Threshold *decimal.Decimal
	Actor     string
}

type Outcome struct {
	Run       *ledger.Run
	Report    *Report
	Plan      *Plan
	Execution *Execution
}

type RunDetail struct {
	Run     *ledger.Run
	Actions []*ledger.RepairAction
}

type Engine struct {
	store    ledger.Store
	cache    *cache.Manager
	locker   lock.Locker
	jobs     *job.Manager
	detector *Detector
	planner  *Planner
	executor *Executor
	opts     EngineOptions

	mu     sync.Mutex
	active map[uuid.UUID]*atomic.Bool
}

func NewEngine(store ledger.Store, c *cache.Manager, locker lock.Locker, jobs *job.Manager, opts EngineOptions) *Engine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}

	if opts.StaleAfter <= 0 {
		opts.StaleAfter = opts.LockTTL
	}

	return &Engine{
		store:    store,
		cache:    c,
		locker:   locker,
		jobs:     jobs,
		detector: NewDetector(store, opts.Batch),
		planner:  NewPlanner(opts.MaxAdjustment),
		executor: NewExecutor(store, c, debt.NewQuery(store, c), ExecutorOptions{
			ConfidenceThreshold: opts.ConfidenceThreshold,
			MaxAdjustment:       opts.MaxAdjustment,
			Now:                 opts.Now,
		}),
		opts:   opts,
		active: make(map[uuid.UUID]*atomic.Bool),
	}
}

func (e *Engine) normalize(opts Options) (Options, error) {
	if opts.Mode == "" {
		opts.Mode = ledger.ModeDry
	}

	if !opts.Mode.Valid() {
		return opts, fmt.Errorf("mode %q: %w", opts.Mode, ErrInvalidMode)
	}

	if opts.Threshold == nil {
		opts.Threshold = new(e.opts.DriftThreshold)
	}

	if opts.Threshold.IsNegative() {
		return opts, fmt.Errorf("threshold %s: %w", opts.Threshold, ErrInvalidThreshold)
	}

	if opts.Actor == "" {
		opts.Actor = "system"
	}

	return opts, nil
}

// Run performs one reconciliation synchronously.
func (e *Engine) Run(ctx context.Context, opts Options) (*Outcome, error) {
	opts, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, opts, nil)
}

// Start launches the run as a background job and returns the job id.
func (e *Engine) Start(opts Options) (uuid.UUID, error) {
	opts, err := e.normalize(opts)
	if err != nil {
		return uuid.Nil, err
	}

	id := e.jobs.Start(JobKind, func(ctx context.Context, p *job.Progress) (any, error) {
		return e.run(ctx, opts, p)
	})

	return id, nil
}

type runProgress struct {
	job       *job.Progress
	cancelled func() bool
}

func (r runProgress) Batch(current, total int) {
	if r.job != nil {
		r.job.Batch(current, total)
	}
}

func (r runProgress) Cancelled() bool { return r.cancelled() }

func (r runProgress) phase(name string) {
	if r.job != nil {
		r.job.Phase(name)
	}
}

func (e *Engine) run(ctx context.Context, opts Options, p *job.Progress) (*Outcome, error) {
	var held lock.Lock

	if opts.Mode == ledger.ModeEnforce {
		l, err := e.locker.Obtain(ctx, enforceLockKey, e.opts.LockTTL)
		if errors.Is(err, lock.ErrNotObtained) {
			return nil, ErrRunInProgress
		}

		if err != nil {
			return nil, fmt.Errorf("obtaining run lock: %w", err)
		}

		held = l

		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	now := e.opts.Now()

	run := &ledger.Run{
		Mode:        opts.Mode,
		Scope:       opts.Scope,
		Threshold:   *opts.Threshold,
		Status:      ledger.RunCreated,
		TotalCached: decimal.Zero,
		TotalLedger: decimal.Zero,
		TotalDrift:  decimal.Zero,
		DriftRatio:  decimal.Zero,
		Risk:        ledger.RiskLow,
		Actor:       opts.Actor,
		StartedAt:   now,
		HeartbeatAt: new(now),
	}

	if err := e.store.WithTx(ctx, func(tx ledger.Tx) error { return tx.CreateRun(ctx, run) }); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	flag := e.register(run.ID)
	defer e.unregister(run.ID)

	progress := runProgress{job: p, cancelled: func() bool { return e.checkpoint(ctx, run, held, flag, p) }}
	out := &Outcome{Run: run}

	slog.Info("reconciliation started", "run_id", run.ID, "mode", run.Mode, "scope", len(run.Scope))

	if err := e.transition(ctx, run, ledger.RunDetecting, false); err != nil {
		return out, err
	}

	progress.phase("detecting")

	report, err := e.detector.Detect(ctx, opts.Scope, run.Threshold, progress)
	if errors.Is(err, batch.ErrCancelled) {
		return out, e.transition(ctx, run, ledger.RunCancelled, true)
	}

	if err != nil {
		return out, e.fail(ctx, run, err)
	}

	out.Report = report
	run.TotalCached = report.TotalCached
	run.TotalLedger = report.TotalLedger
	run.TotalDrift = report.TotalDrift
	run.DriftRatio = report.DriftRatio
	run.AnomalyCount = len(report.Anomalies)

	progress.phase("planning")

	plan := e.planner.Plan(report, opts.Mode)
	out.Plan = plan
	run.Risk = plan.Risk

	for _, a := range plan.Actions {
		a.RunID = run.ID

		if opts.Mode == ledger.ModeDry {
			a.Status = ledger.ActionSkipped
			a.Reason = "dry run: " + a.Reason
		}
	}

	if !run.Status.CanTransition(report.Status) {
		return out, e.fail(ctx, run, fmt.Errorf("%s -> %s: %w", run.Status, report.Status, ErrBadTransition))
	}

	run.Status = report.Status
	final := opts.Mode == ledger.ModeDry || report.Status == ledger.RunOK

	if final {
		run.FinishedAt = new(e.opts.Now())
	}

	err = e.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}

		if len(plan.Actions) == 0 {
			return nil
		}

		return tx.CreateActions(ctx, plan.Actions)
	})
	if err != nil {
		return out, e.fail(ctx, run, fmt.Errorf("storing plan: %w", err))
	}

	slog.Info("drift detected",
		"run_id", run.ID,
		"status", run.Status,
		"anomalies", run.AnomalyCount,
		"total_drift", run.TotalDrift,
		"risk", run.Risk,
		"manual_review", len(plan.ManualReview),
	)

	if final {
		e.cache.Invalidate(cache.KeyMetrics)
		return out, nil
	}

	if err := e.transition(ctx, run, ledger.RunExecuting, false); err != nil {
		return out, err
	}

	progress.phase("executing")

	exec, err := e.executor.Execute(ctx, run, plan.Actions, progress.Cancelled)
	out.Execution = exec

	if exec != nil {
		run.Applied, run.Failed, run.Skipped = exec.Applied, exec.Failed, exec.Skipped
	}

	if err != nil {
		return out, e.fail(ctx, run, err)
	}

	next := ledger.RunCompleted

	switch {
	case exec.Cancelled > 0:
		next = ledger.RunCancelled
	case exec.Failed > 0:
		next = ledger.RunPartiallyFailed
	}

	if err := e.transition(ctx, run, next, true); err != nil {
		return out, err
	}

	slog.Info("reconciliation finished",
		"run_id", run.ID,
		"status", run.Status,
		"applied", exec.Applied,
		"failed", exec.Failed,
		"skipped", exec.Skipped,
		"duration", exec.Duration,
	)

	return out, nil
}

func (e *Engine) transition(ctx context.Context, run *ledger.Run, next ledger.RunStatus, final bool) error {
	if !run.Status.CanTransition(next) {
		return fmt.Errorf("run %s %s -> %s: %w", run.ID, run.Status, next, ErrBadTransition)
	}

	run.Status = next

	if final {
		run.FinishedAt = new(e.opts.Now())
		defer e.cache.Invalidate(cache.KeyMetrics)
	}

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateRun(ctx, run) })
	if errors.Is(err, ledger.ErrRunClosed) {
		run.Status = ledger.RunCancelled
	}

	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	return nil
}

// checkpoint is polled before every batch and action. It refreshes the
// enforce lock and the run heartbeat, and reports whether the run has to
// stop because it was cancelled here or through the store.
func (e *Engine) checkpoint(ctx context.Context, run *ledger.Run, held lock.Lock, flag *atomic.Bool, p *job.Progress) bool {
	if flag.Load() || p.Cancelled() {
		return true
	}

	if held != nil {
		err := held.Refresh(ctx, e.opts.LockTTL)
		if errors.Is(err, lock.ErrNotObtained) {
			slog.Error("run lock lost, stopping", "run_id", run.ID, "error", err)
			return true
		}

		if err != nil {
			slog.Warn("failed to refresh run lock", "run_id", run.ID, "error", err)
		}
	}

	var stored *ledger.Run

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error

		stored, err = tx.HeartbeatRun(ctx, run.ID, e.opts.Now())

		return err
	})
	if err != nil {
		slog.Warn("failed to record run heartbeat", "run_id", run.ID, "error", err)
		return false
	}

	run.HeartbeatAt = stored.HeartbeatAt

	if stored.CancelRequested || stored.Status == ledger.RunCancelled {
		run.CancelRequested = true

		slog.Info("run cancelled through the store", "run_id", run.ID, "status", stored.Status)

		return true
	}

	return false
}

// fail records a system fault on the run and returns cause.
func (e *Engine) fail(ctx context.Context, run *ledger.Run, cause error) error {
	slog.Error("reconciliation failed", "run_id", run.ID, "status", run.Status, "error", cause)

	run.Status = ledger.RunFailed
	run.Error = cause.Error()
	run.FinishedAt = new(e.opts.Now())

	ctx = context.WithoutCancel(ctx)
	if err := e.store.WithTx(ctx, func(tx ledger.Tx) error { return tx.UpdateRun(ctx, run) }); err != nil {
		return errors.Join(cause, fmt.Errorf("recording run failure: %w", err))
	}

	return cause
}

func (e *Engine) register(id uuid.UUID) *atomic.Bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	flag := new(atomic.Bool)
	e.active[id] = flag

	return flag
}

func (e *Engine) unregister(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.active, id)
}

func (e *Engine) Status(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	actions, err := e.store.ListActions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}

	return &RunDetail{Run: run, Actions: actions}, nil
}

func (e *Engine) History(ctx context.Context, limit, offset int) ([]*ledger.Run, error) {
	runs, err := e.store.ListRuns(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// Cancel stops an active run. A run executing in this process is flagged
// and stops before its next batch or action. A run owned by another live
// process is marked cancel-requested; its owner sees the mark at its next
// checkpoint. A run whose heartbeat is older than StaleAfter is closed
// directly, together with its pending actions.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*ledger.Run, error) {
	e.mu.Lock()
	flag, local := e.active[id]
	e.mu.Unlock()

	if local {
		flag.Store(true)
		return e.store.GetRun(ctx, id)
	}

	var run *ledger.Run

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error

		run, err = tx.GetRun(ctx, id)
		if err != nil {
			return fmt.Errorf("getting run: %w", err)
		}

		if !run.Status.Active() {
			return fmt.Errorf("run %s is %s: %w", id, run.Status, ErrNotCancellable)
		}

		if run.HeartbeatAt != nil && e.opts.Now().Sub(*run.HeartbeatAt) < e.opts.StaleAfter {
			run.CancelRequested = true
			return tx.UpdateRun(ctx, run)
		}

		actions, err := tx.ListActions(ctx, id)
		if err != nil {
			return fmt.Errorf("listing actions: %w", err)
		}

		for _, a := range actions {
			if a.Status != ledger.ActionPending {
				continue
			}

			a.Status = ledger.ActionCancelled
			a.Reason = "run cancelled"

			if err := tx.UpdateAction(ctx, a); err != nil {
				return fmt.Errorf("cancelling action %d: %w", a.Seq, err)
			}
		}

		run.Status = ledger.RunCancelled
		run.FinishedAt = new(e.opts.Now())

		return tx.UpdateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("reconciliation cancel recorded", "run_id", run.ID, "status", run.Status, "requested", run.CancelRequested)

	return run, nil
}
