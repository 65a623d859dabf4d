package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RepresentativeFilter struct {
	IDs        []uuid.UUID
	ActiveOnly bool
}

type InvoiceFilter struct {
	IDs               []uuid.UUID
	RepresentativeIDs []uuid.UUID
	Statuses          []InvoiceStatus
	IssueDate         *time.Time // Matches the calendar day
}

type PaymentFilter struct {
	RepresentativeID *uuid.UUID
	InvoiceID        *uuid.UUID
	Allocated        *bool
}

type LineFilter struct {
	RepresentativeID *uuid.UUID
	PaymentID        *uuid.UUID
	InvoiceID        *uuid.UUID
}

type AuditFilter struct {
	RepresentativeID *uuid.UUID
	RunID            *uuid.UUID
	Kind             *AuditKind
}

// Reader is the read side of the ledger. Implementations return ErrNotFound
// (possibly wrapped) for missing records.
type Reader interface {
	GetRepresentative(ctx context.Context, id uuid.UUID) (*Representative, error)
	ListRepresentatives(ctx context.Context, filter RepresentativeFilter) ([]*Representative, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error)
	ListAllocationLines(ctx context.Context, filter LineFilter) ([]*AllocationLine, error)
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)

	// Totals aggregates invoiced and allocated amounts for every id in one
	// query. Ids without records map to zero totals.
	Totals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Totals, error)
	InvoiceBalances(ctx context.Context, filter InvoiceFilter) ([]InvoiceBalance, error)
	OrphanedPayments(ctx context.Context, representativeIDs []uuid.UUID) ([]OrphanedPayment, error)

	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	ListActions(ctx context.Context, runID uuid.UUID) ([]*RepairAction, error)

	PaymentStats(ctx context.Context) (PaymentStats, error)
	DailyAllocations(ctx context.Context, since time.Time) ([]DailyAllocation, error)
	UnallocatedByRepresentative(ctx context.Context, minCount, limit int) ([]Backlog, error)
}

// Tx is a unit of work against the ledger. Writers lock the representative
// row first so that every write for one representative is serialized.
type Tx interface {
	Reader

	LockRepresentative(ctx context.Context, id uuid.UUID) (*Representative, error)
	LockPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	LockIssueDate(ctx context.Context, day time.Time) error

	CreateRepresentative(ctx context.Context, rep *Representative) error
	CreateInvoice(ctx context.Context, inv *Invoice) error
	CreatePayment(ctx context.Context, p *Payment) error
	MarkPaymentAllocated(ctx context.Context, id, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) error
	ReleasePayment(ctx context.Context, id uuid.UUID) error
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
	SetCachedDebt(ctx context.Context, id uuid.UUID, debt decimal.Decimal) error

	AppendAllocationLine(ctx context.Context, line *AllocationLine) error
	AppendAudit(ctx context.Context, rec *AuditRecord) error

	CreateRun(ctx context.Context, run *Run) error
	// UpdateRun never clears CancelRequested or moves HeartbeatAt back.
	UpdateRun(ctx context.Context, run *Run) error
	// HeartbeatRun stamps the run's heartbeat and returns the stored run.
	HeartbeatRun(ctx context.Context, id uuid.UUID, at time.Time) (*Run, error)
	CreateActions(ctx context.Context, actions []*RepairAction) error
	UpdateAction(ctx context.Context, action *RepairAction) error
}

// Store runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
