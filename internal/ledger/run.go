package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects whether a reconciliation run only reports or also repairs.
type Mode string

const (
	ModeDry     Mode = "dry"
	ModeEnforce Mode = "enforce"
)

func (m Mode) Valid() bool {
	return m == ModeDry || m == ModeEnforce
}

// RunStatus is the state of a reconciliation run.
type RunStatus string

const (
	RunCreated         RunStatus = "CREATED"
	RunDetecting       RunStatus = "DETECTING"
	RunOK              RunStatus = "OK"
	RunWarn            RunStatus = "WARN"
	RunExecuting       RunStatus = "EXECUTING"
	RunCompleted       RunStatus = "COMPLETED"
	RunPartiallyFailed RunStatus = "PARTIALLY_FAILED"
	RunCancelled       RunStatus = "CANCELLED"
	RunFailed          RunStatus = "FAILED"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunCreated:   {RunDetecting, RunCancelled, RunFailed},
	RunDetecting: {RunOK, RunWarn, RunCancelled, RunFailed},
	RunWarn:      {RunExecuting},
	RunExecuting: {RunCompleted, RunPartiallyFailed, RunCancelled, RunFailed},
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Active reports whether a run in status s can still be cancelled.
func (s RunStatus) Active() bool {
	return s == RunCreated || s == RunDetecting || s == RunExecuting
}

// RiskLevel is the advisory classification of a repair plan.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Run is one invocation of drift detection, optionally followed by repair.
type Run struct {
	ID           uuid.UUID
	Mode         Mode
	Scope        []uuid.UUID // Empty means every active representative
	Threshold    decimal.Decimal
	Status       RunStatus
	TotalCached  decimal.Decimal
	TotalLedger  decimal.Decimal
	TotalDrift   decimal.Decimal
	DriftRatio   decimal.Decimal
	AnomalyCount int
	Risk         RiskLevel
	Applied      int
	Failed       int
	Skipped      int
	Actor        string
	Error        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	// HeartbeatAt is refreshed by the process executing the run. A nil or
	// old heartbeat means the owner is gone.
	HeartbeatAt     *time.Time
	CancelRequested bool
}

type ActionType string

const (
	ActionAdjustDebt         ActionType = "ADJUST_DEBT"
	ActionSyncCache          ActionType = "SYNC_CACHE"
	ActionRecalculateBalance ActionType = "RECALCULATE_BALANCE"
)

type TargetType string

const (
	TargetRepresentative TargetType = "representative"
	TargetInvoice        TargetType = "invoice"
)

type ActionStatus string

const (
	ActionPending   ActionStatus = "PENDING"
	ActionApplied   ActionStatus = "APPLIED"
	ActionFailed    ActionStatus = "FAILED"
	ActionSkipped   ActionStatus = "SKIPPED"
	ActionCancelled ActionStatus = "CANCELLED"
)

// RepairAction is one proposed correction belonging to a run.
type RepairAction struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	Seq        int
	Type       ActionType
	TargetType TargetType
	TargetID   uuid.UUID
	Current    decimal.Decimal
	Expected   decimal.Decimal
	Adjustment decimal.Decimal
	Confidence int
	Status     ActionStatus
	Reason     string
	AppliedAt  *time.Time
	CreatedAt  time.Time
}
