package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

// ValidAmount reports whether d is positive and representable at MoneyScale.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(MoneyScale))
}

// Representative is a reseller that is billed invoices and makes payments.
type Representative struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Active     bool
	CachedDebt decimal.Decimal // Denormalized snapshot, never negative
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Invoice is an amount billed to a representative.
type Invoice struct {
	ID               uuid.UUID
	RepresentativeID uuid.UUID
	Number           string
	Amount           decimal.Decimal
	IssueDate        time.Time
	DueDate          *time.Time
	Status           InvoiceStatus
	CreatedAt        time.Time
}

// Payment is money received from a representative. Once allocated, Amount is
// the allocated portion; any remainder lives in a separate payment whose
// SplitFrom points back here.
type Payment struct {
	ID               uuid.UUID
	RepresentativeID uuid.UUID
	InvoiceID        *uuid.UUID
	Amount           decimal.Decimal
	PaymentDate      time.Time
	Reference        string
	IsAllocated      bool
	AllocatedAt      *time.Time
	SplitFrom        *uuid.UUID
	CreatedAt        time.Time
}

// Method records how an allocation was decided.
type Method string

const (
	MethodAuto     Method = "auto"
	MethodManual   Method = "manual"
	MethodBackfill Method = "backfill"
	MethodReversal Method = "reversal"
)

// AllocationLine is the write-once audit record of one payment to invoice
// allocation. Reversals are appended as lines with a negative amount.
type AllocationLine struct {
	ID               uuid.UUID
	PaymentID        uuid.UUID
	InvoiceID        uuid.UUID
	RepresentativeID uuid.UUID
	Amount           decimal.Decimal
	Method           Method
	Synthetic        bool
	Actor            string
	CreatedAt        time.Time
}

// AuditKind classifies financial audit transactions.
type AuditKind string

const (
	AuditDebtAdjustment  AuditKind = "debt_adjustment"
	AuditInvoiceRollback AuditKind = "invoice_rollback"
)

// AuditRecord is an append-only financial transaction capturing the state
// before and after a correction.
type AuditRecord struct {
	ID               uuid.UUID
	Kind             AuditKind
	RepresentativeID *uuid.UUID
	RunID            *uuid.UUID
	Actor            string
	Before           json.RawMessage
	After            json.RawMessage
	CreatedAt        time.Time
}

// Totals is the set-based aggregate the debt projection is built from.
type Totals struct {
	RepresentativeID uuid.UUID
	Invoiced         decimal.Decimal
	Allocated        decimal.Decimal
}

// InvoiceBalance pairs an invoice with the sum of payments allocated to it.
type InvoiceBalance struct {
	Invoice   *Invoice
	Allocated decimal.Decimal
	Payments  int // Allocated payments behind Allocated
}

func (b InvoiceBalance) Remaining() decimal.Decimal {
	return b.Invoice.Amount.Sub(b.Allocated)
}

// DerivedStatus is the status the invoice should carry given its allocations.
func (b InvoiceBalance) DerivedStatus() InvoiceStatus {
	return NextStatus(b.Invoice.Status, b.Invoice.Amount, b.Allocated)
}

// OrphanedPayment is an allocated payment whose invoice link is missing or
// points at another representative's invoice.
type OrphanedPayment struct {
	Payment *Payment
	Reason  string
}

const (
	OrphanNoInvoice      = "allocated without invoice link"
	OrphanInvoiceMissing = "linked invoice does not exist"
	OrphanForeignInvoice = "linked invoice belongs to another representative"
)

// PaymentStats aggregates payments across all representatives.
type PaymentStats struct {
	Total             int
	Allocated         int
	Unallocated       int
	TotalAmount       decimal.Decimal
	AllocatedAmount   decimal.Decimal
	UnallocatedAmount decimal.Decimal
	LastAllocationAt  *time.Time
}

// DailyAllocation is one day of allocation activity.
type DailyAllocation struct {
	Day             time.Time
	Created         int
	Allocated       int
	AllocatedAmount decimal.Decimal
}

// Backlog is the unallocated payment load of one representative.
type Backlog struct {
	RepresentativeID uuid.UUID
	Code             string
	Name             string
	Count            int
	Amount           decimal.Decimal
}
