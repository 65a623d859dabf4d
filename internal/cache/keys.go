package cache

import "github.com/google/uuid"

const (
	KeySummary = "global:summary"
	KeyDebtors = "global:debtors"
	KeyMetrics = "global:metrics"
)

func DebtKey(id uuid.UUID) string       { return "rep:" + id.String() + ":debt" }
func InvoicesKey(id uuid.UUID) string   { return "rep:" + id.String() + ":invoices" }
func AllocationKey(id uuid.UUID) string { return "rep:" + id.String() + ":allocations" }

// RepresentativeKeys lists every key scoped to one representative.
func RepresentativeKeys(id uuid.UUID) []string {
	return []string{DebtKey(id), InvoicesKey(id), AllocationKey(id)}
}

// GlobalKeys lists the aggregate keys that any ledger mutation can stale.
func GlobalKeys() []string {
	return []string{KeySummary, KeyDebtors, KeyMetrics}
}
