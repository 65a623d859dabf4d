// Package monitoring turns ledger statistics into allocation metrics, trends,
// alerts and an overall health grade.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

//go:generate mockgen -source=monitoring.go -destination=source_mock.go -package=monitoring

// Source is the read side monitoring needs. ledger.Store satisfies it.
type Source interface {
	PaymentStats(ctx context.Context) (ledger.PaymentStats, error)
	DailyAllocations(ctx context.Context, since time.Time) ([]ledger.DailyAllocation, error)
	UnallocatedByRepresentative(ctx context.Context, minCount, limit int) ([]ledger.Backlog, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*ledger.Run, error)
	ListActions(ctx context.Context, runID uuid.UUID) ([]*ledger.RepairAction, error)
}

type Metrics struct {
	TotalPayments     int             `json:"total_payments"`
	Allocated         int             `json:"allocated_payments"`
	Unallocated       int             `json:"unallocated_payments"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal `json:"unallocated_amount"`
	AllocationRate    float64         `json:"allocation_rate"` // Percent
	LastAllocationAt  *time.Time      `json:"last_allocation_at"`
}

type Trend struct {
	Day             time.Time       `json:"day"`
	Created         int             `json:"created"`
	Allocated       int             `json:"allocated"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	Efficiency      float64         `json:"efficiency"` // Percent of the day's new payments allocated
}

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

type AlertKind string

const (
	AlertUnallocated           AlertKind = "unallocated_payments"
	AlertRepresentativeBacklog AlertKind = "representative_backlog"
	AlertStaleAllocation       AlertKind = "no_recent_allocation"
	AlertReconcileWarn         AlertKind = "reconciliation_warn"
	AlertReconcileFailures     AlertKind = "reconciliation_failures"
)

type Alert struct {
	Kind             AlertKind  `json:"kind"`
	Severity         Severity   `json:"severity"`
	Priority         Priority   `json:"priority"`
	Message          string     `json:"message"`
	RepresentativeID *uuid.UUID `json:"representative_id,omitempty"`
	RunID            *uuid.UUID `json:"run_id,omitempty"`
	ActionRequired   bool       `json:"action_required"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Health string

const (
	HealthExcellent Health = "EXCELLENT"
	HealthGood      Health = "GOOD"
	HealthWarning   Health = "WARNING"
	HealthCritical  Health = "CRITICAL"
)

type Report struct {
	Metrics         *Metrics      `json:"metrics"`
	Trends          []Trend       `json:"trends"`
	Alerts          []Alert       `json:"alerts"`
	Recommendations []string      `json:"recommendations"`
	Health          Health        `json:"health"`
	GeneratedAt     time.Time     `json:"generated_at"`
	Duration        time.Duration `json:"duration"`
}

// Thresholds. Amounts are in the ledger currency.
const (
	unallocatedAlertCount = 10
	unallocatedHighCount  = 50
	backlogMinCount       = 5
	backlogLimit          = 5
	staleAllocationWindow = 24 * time.Hour
	reportTrendDays       = 30
)

var backlogHighAmount = decimal.NewFromInt(5_000_000)

type Options struct {
	ReportTTL time.Duration // Zero uses the cache default
	Now       func() time.Time
}

type Service struct {
	src   Source
	cache *cache.Manager
	opts  Options
}

func NewService(src Source, c *cache.Manager, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{src: src, cache: c, opts: opts}
}

func (s *Service) Metrics(ctx context.Context) (*Metrics, error) {
	stats, err := s.src.PaymentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting payment stats: %w", err)
	}

	return &Metrics{
		TotalPayments:     stats.Total,
		Allocated:         stats.Allocated,
		Unallocated:       stats.Unallocated,
		TotalAmount:       stats.TotalAmount,
		AllocatedAmount:   stats.AllocatedAmount,
		UnallocatedAmount: stats.UnallocatedAmount,
		AllocationRate:    percent(stats.Allocated, stats.Total),
		LastAllocationAt:  stats.LastAllocationAt,
	}, nil
}

// Trends returns one entry per day with activity over the last days days,
// most recent first.
func (s *Service) Trends(ctx context.Context, days int) ([]Trend, error) {
	if days <= 0 {
		days = reportTrendDays
	}

	since := s.opts.Now().AddDate(0, 0, -days)

	daily, err := s.src.DailyAllocations(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("getting daily allocations: %w", err)
	}

	trends := make([]Trend, 0, len(daily))
	for _, d := range daily {
		trends = append(trends, Trend{
			Day:             d.Day,
			Created:         d.Created,
			Allocated:       d.Allocated,
			AllocatedAmount: d.AllocatedAmount,
			Efficiency:      percent(d.Allocated, d.Created),
		})
	}

	slices.SortFunc(trends, func(a, b Trend) int { return b.Day.Compare(a.Day) })

	return trends, nil
}

func (s *Service) Alerts(ctx context.Context) ([]Alert, error) {
	m, err := s.Metrics(ctx)
	if err != nil {
		return nil, err
	}

	return s.alerts(ctx, m)
}

func (s *Service) alerts(ctx context.Context, m *Metrics) ([]Alert, error) {
	now := s.opts.Now()

	var alerts []Alert

	if m.Unallocated > unallocatedAlertCount {
		alerts = append(alerts, Alert{
			Kind:           AlertUnallocated,
			Severity:       SeverityWarning,
			Priority:       pick(m.Unallocated > unallocatedHighCount, PriorityHigh, PriorityMedium),
			Message:        fmt.Sprintf("%d payments totalling %s are unallocated", m.Unallocated, m.UnallocatedAmount.StringFixed(2)),
			ActionRequired: true,
			CreatedAt:      now,
		})
	}

	backlog, err := s.src.UnallocatedByRepresentative(ctx, backlogMinCount, backlogLimit)
	if err != nil {
		return nil, fmt.Errorf("getting unallocated backlog: %w", err)
	}

	for _, b := range backlog {
		alerts = append(alerts, Alert{
			Kind:             AlertRepresentativeBacklog,
			Severity:         SeverityWarning,
			Priority:         pick(b.Amount.GreaterThan(backlogHighAmount), PriorityHigh, PriorityMedium),
			Message:          fmt.Sprintf("%s has %d unallocated payments totalling %s", b.Code, b.Count, b.Amount.StringFixed(2)),
			RepresentativeID: new(b.RepresentativeID),
			ActionRequired:   true,
			CreatedAt:        now,
		})
	}

	if m.TotalPayments > 0 && (m.LastAllocationAt == nil || now.Sub(*m.LastAllocationAt) > staleAllocationWindow) {
		alerts = append(alerts, Alert{
			Kind:           AlertStaleAllocation,
			Severity:       SeverityError,
			Priority:       PriorityHigh,
			Message:        "no payment was allocated in the last 24 hours",
			ActionRequired: true,
			CreatedAt:      now,
		})
	}

	runAlerts, err := s.runAlerts(ctx, now)
	if err != nil {
		return nil, err
	}

	return append(alerts, runAlerts...), nil
}

// runAlerts looks at the latest reconciliation run only; older runs were
// superseded by it.
func (s *Service) runAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	runs, err := s.src.ListRuns(ctx, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		return nil, nil
	}

	run := runs[0]

	var alerts []Alert

	if run.Status == ledger.RunWarn {
		alerts = append(alerts, Alert{
			Kind:     AlertReconcileWarn,
			Severity: SeverityWarning,
			Priority: PriorityMedium,
			Message: fmt.Sprintf("latest reconciliation found %d anomalies (drift %s)",
				run.AnomalyCount, run.TotalDrift.StringFixed(2)),
			RunID:          new(run.ID),
			ActionRequired: true,
			CreatedAt:      now,
		})
	}

	actions, err := s.src.ListActions(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("listing run actions: %w", err)
	}

	failed := 0

	for _, a := range actions {
		if a.Status == ledger.ActionFailed {
			failed++
		}
	}

	if failed > 0 {
		alerts = append(alerts, Alert{
			Kind:           AlertReconcileFailures,
			Severity:       SeverityError,
			Priority:       PriorityHigh,
			Message:        fmt.Sprintf("latest reconciliation has %d failed repair actions", failed),
			RunID:          new(run.ID),
			ActionRequired: true,
			CreatedAt:      now,
		})
	}

	return alerts, nil
}

// Report bundles metrics, trends, alerts and recommendations. It is cached
// under the global metrics key, which every allocation drops.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	if r, ok := cache.Lookup[*Report](s.cache, cache.KeyMetrics); ok {
		return r, nil
	}

	version := s.cache.Version(cache.KeyMetrics)

	start := s.opts.Now()

	m, err := s.Metrics(ctx)
	if err != nil {
		return nil, err
	}

	trends, err := s.Trends(ctx, reportTrendDays)
	if err != nil {
		return nil, err
	}

	alerts, err := s.alerts(ctx, m)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Metrics:         m,
		Trends:          trends,
		Alerts:          alerts,
		Recommendations: Recommend(m, trends),
		Health:          Grade(m, alerts),
		GeneratedAt:     start,
	}
	r.Duration = s.opts.Now().Sub(start)

	s.cache.SetIfCurrent(version, r, cache.SetOptions{TTL: s.opts.ReportTTL})

	slog.Info("monitoring report generated",
		"health", r.Health,
		"alerts", len(r.Alerts),
		"allocation_rate", m.AllocationRate,
	)

	return r, nil
}

func Recommend(m *Metrics, trends []Trend) []string {
	var out []string

	if m.AllocationRate < 80 {
		out = append(out, "allocation rate is low; run automatic allocation for pending payments")
	}

	if m.Unallocated > 20 {
		out = append(out, "many payments are unallocated; run bulk allocation per representative")
	}

	if len(trends) > 0 && trends[0].Efficiency < 50 {
		out = append(out, "allocation efficiency dropped; review the allocation workflow")
	}

	return out
}

// Grade derives the overall health. An empty ledger grades on alerts only.
func Grade(m *Metrics, alerts []Alert) Health {
	var critical, high int

	for _, a := range alerts {
		switch a.Priority {
		case PriorityCritical:
			critical++
		case PriorityHigh:
			high++
		}
	}

	rate := m.AllocationRate
	if m.TotalPayments == 0 {
		rate = 100
	}

	switch {
	case critical > 0:
		return HealthCritical
	case high > 2 || rate < 60:
		return HealthWarning
	case high > 0 || rate < 80:
		return HealthGood
	default:
		return HealthExcellent
	}
}

// percent is part/whole*100 rounded to two decimals, 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}

	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(whole))).
		Round(2).
		InexactFloat64()
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}

	return b
}
