package allocation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

func balance(id string, issued time.Time, amount, allocated string, status ledger.InvoiceStatus) ledger.InvoiceBalance {
	return ledger.InvoiceBalance{
		Invoice: &ledger.Invoice{
			ID:        uuid.MustParse(id),
			Number:    id[:4],
			Amount:    decimal.RequireFromString(amount),
			IssueDate: issued,
			Status:    status,
		},
		Allocated: decimal.RequireFromString(allocated),
	}
}

func TestSelectInvoice(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)

	older := balance("00000000-0000-0000-0000-000000000001", jan, "100", "0", ledger.StatusUnpaid)
	newer := balance("00000000-0000-0000-0000-000000000002", feb, "1000", "0", ledger.StatusUnpaid)
	sameDayLow := balance("00000000-0000-0000-0000-000000000003", feb, "1000", "0", ledger.StatusOverdue)
	sameDayHigh := balance("00000000-0000-0000-0000-000000000004", feb, "1000", "0", ledger.StatusPartial)
	paid := balance("00000000-0000-0000-0000-000000000005", jan.AddDate(-1, 0, 0), "1000", "1000", ledger.StatusPaid)

	type args struct {
		balances []ledger.InvoiceBalance
		amount   string
	}

	type testCase struct {
		name   string
		args   args
		wantID uuid.UUID
		wantOK bool
	}

	tests := []testCase{
		{
			name:   "OldestThatFits",
			args:   args{balances: []ledger.InvoiceBalance{newer, older}, amount: "50"},
			wantID: older.Invoice.ID,
			wantOK: true,
		},
		{
			name:   "SkipsOlderTooSmall",
			args:   args{balances: []ledger.InvoiceBalance{older, newer}, amount: "500"},
			wantID: newer.Invoice.ID,
			wantOK: true,
		},
		{
			name:   "FallsBackToOldest",
			args:   args{balances: []ledger.InvoiceBalance{newer, older}, amount: "5000"},
			wantID: older.Invoice.ID,
			wantOK: true,
		},
		{
			name:   "TieBrokenByID",
			args:   args{balances: []ledger.InvoiceBalance{sameDayHigh, sameDayLow}, amount: "10"},
			wantID: sameDayLow.Invoice.ID,
			wantOK: true,
		},
		{
			name:   "IgnoresPaid",
			args:   args{balances: []ledger.InvoiceBalance{paid}, amount: "10"},
			wantOK: false,
		},
		{
			name:   "Empty",
			args:   args{amount: "10"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := allocation.SelectInvoice(tt.args.balances, decimal.RequireFromString(tt.args.amount))

			require.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.Invoice.ID)
			}
		})
	}
}

func TestSortFIFO(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := balance("00000000-0000-0000-0000-00000000000a", jan, "1", "0", ledger.StatusUnpaid)
	b := balance("00000000-0000-0000-0000-00000000000b", jan, "1", "0", ledger.StatusUnpaid)
	c := balance("00000000-0000-0000-0000-00000000000c", jan.AddDate(0, 0, -1), "1", "0", ledger.StatusUnpaid)

	got := []ledger.InvoiceBalance{b, a, c}
	allocation.SortFIFO(got)

	assert.Equal(t, []uuid.UUID{c.Invoice.ID, a.Invoice.ID, b.Invoice.ID},
		[]uuid.UUID{got[0].Invoice.ID, got[1].Invoice.ID, got[2].Invoice.ID})
}
