package ledger

import "github.com/shopspring/decimal"

// InvoiceStatus is derived from the ratio of allocated payments to amount.
type InvoiceStatus string

const (
	StatusUnpaid  InvoiceStatus = "unpaid"
	StatusPartial InvoiceStatus = "partial"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
)

// PaidRatio is the allocated/amount ratio at which an invoice counts as paid.
var PaidRatio = decimal.RequireFromString("0.999")

// OutstandingStatuses are the statuses eligible for allocation.
var OutstandingStatuses = []InvoiceStatus{StatusUnpaid, StatusPartial, StatusOverdue}

func (s InvoiceStatus) Outstanding() bool {
	return s == StatusUnpaid || s == StatusPartial || s == StatusOverdue
}

func (s InvoiceStatus) Valid() bool {
	return s.Outstanding() || s == StatusPaid
}

// DeriveStatus applies the ratio rule. An invoice with nothing to pay is paid.
func DeriveStatus(amount, allocated decimal.Decimal) InvoiceStatus {
	if !amount.IsPositive() {
		return StatusPaid
	}

	ratio := allocated.Div(amount)

	switch {
	case ratio.GreaterThanOrEqual(PaidRatio):
		return StatusPaid
	case ratio.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// NextStatus derives the status for an invoice currently in status current.
// Overdue is owned by the external due policy and survives until paid.
func NextStatus(current InvoiceStatus, amount, allocated decimal.Decimal) InvoiceStatus {
	derived := DeriveStatus(amount, allocated)
	if current == StatusOverdue && derived != StatusPaid {
		return StatusOverdue
	}

	return derived
}
