package allocation

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// SortFIFO orders balances oldest issue date first, ties broken by id.
func SortFIFO(balances []ledger.InvoiceBalance) {
	slices.SortStableFunc(balances, func(a, b ledger.InvoiceBalance) int {
		return cmp.Or(
			a.Invoice.IssueDate.Compare(b.Invoice.IssueDate),
			bytes.Compare(a.Invoice.ID[:], b.Invoice.ID[:]),
		)
	})
}

// SelectInvoice picks the target for an automatic allocation of amount:
// the oldest outstanding invoice that can absorb the whole amount, else the
// oldest outstanding invoice. Invoices with nothing left to pay are ignored.
func SelectInvoice(balances []ledger.InvoiceBalance, amount decimal.Decimal) (ledger.InvoiceBalance, bool) {
	open := make([]ledger.InvoiceBalance, 0, len(balances))

	for _, b := range balances {
		if b.Invoice.Status.Outstanding() && b.Remaining().IsPositive() {
			open = append(open, b)
		}
	}

	if len(open) == 0 {
		return ledger.InvoiceBalance{}, false
	}

	SortFIFO(open)

	for _, b := range open {
		if b.Remaining().GreaterThanOrEqual(amount) {
			return b, true
		}
	}

	return open[0], true
}
