// Package allocation assigns payments to invoices and keeps the
// representative's cached debt in step with each allocation.
package allocation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/cache"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

//go:generate mockgen -source=allocation.go -destination=cache_mock.go -package=allocation

var (
	ErrNotFound               = ledger.ErrNotFound
	ErrAlreadyAllocated       = errors.New("payment already allocated")
	ErrNoEligibleInvoice      = errors.New("no eligible invoice")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrRepresentativeMismatch = errors.New("invoice belongs to another representative")
)

// Cache is the part of the cache manager the service writes through.
type Cache interface {
	Get(key string) (any, bool)
	Version(key string, deps ...string) cache.Version
	SetIfCurrent(v cache.Version, value any, opts cache.SetOptions) bool
	Invalidate(keys ...string)
}

// Result describes one committed allocation.
type Result struct {
	Success            bool
	Message            string
	RepresentativeID   uuid.UUID
	PaymentID          uuid.UUID
	InvoiceID          uuid.UUID
	Allocated          decimal.Decimal
	RemainderPaymentID *uuid.UUID
	Remainder          decimal.Decimal
	InvoiceStatus      ledger.InvoiceStatus
	InvoiceRemaining   decimal.Decimal
	CachedDebt         decimal.Decimal
	LineID             uuid.UUID
}

type ManualParams struct {
	PaymentID uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Actor     string
}

type PaymentParams struct {
	RepresentativeID uuid.UUID
	Amount           decimal.Decimal
	PaymentDate      time.Time
	Reference        string
}

// Failure is a payment a bulk operation left untouched.
type Failure struct {
	PaymentID uuid.UUID
	Reason    string
}

type BulkResult struct {
	RepresentativeID uuid.UUID
	Results          []*Result
	Failures         []Failure
	TotalAllocated   decimal.Decimal
}

// Summary is the allocation picture of one representative.
type Summary struct {
	RepresentativeID    uuid.UUID
	Payments            int
	AllocatedPayments   int
	UnallocatedPayments int
	AllocatedAmount     decimal.Decimal
	UnallocatedAmount   decimal.Decimal
	OutstandingInvoices int
	OutstandingAmount   decimal.Decimal
}

type BackfillResult struct {
	RepresentativeID uuid.UUID
	Created          int
	Lines            []*ledger.AllocationLine
}

type ViolationKind string

const (
	ViolationOverAllocated  ViolationKind = "over_allocated"
	ViolationOrphan         ViolationKind = "orphaned_payment"
	ViolationStatusMismatch ViolationKind = "status_mismatch"
	ViolationLineMismatch   ViolationKind = "line_mismatch"
)

type Violation struct {
	Kind      ViolationKind
	PaymentID *uuid.UUID
	InvoiceID *uuid.UUID
	Detail    string
}

type Validation struct {
	RepresentativeID uuid.UUID
	Valid            bool
	Violations       []Violation
}
