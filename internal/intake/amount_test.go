package intake_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/intake"
)

func TestParseAmount(t *testing.T) {
	type testCase struct {
		name    string
		input   string
		want    string
		wantErr bool
	}

	tests := []testCase{
		{name: "European", input: "1.234,56", want: "1234.56"},
		{name: "EuropeanNegative", input: "-588,74", want: "-588.74"},
		{name: "EuropeanLargeGroups", input: "1.234.567,00", want: "1234567"},
		{name: "DotThousandsOnly", input: "5.000.000", want: "5000000"},
		{name: "Plain", input: "1234.56", want: "1234.56"},
		{name: "PlainGrouped", input: "1,234.56", want: "1234.56"},
		{name: "CommaThousandsOnly", input: "1,234,567", want: "1234567"},
		{name: "Integer", input: "50000", want: "50000"},
		{name: "CurrencySuffix", input: "1.000,00 EUR", want: "1000"},
		{name: "Empty", input: "", wantErr: true},
		{name: "Garbage", input: "n/a", wantErr: true},
		{name: "DashOnly", input: "-", wantErr: true},
		{name: "SubCent", input: "3.335", wantErr: true},
		{name: "EuropeanSubCent", input: "1.234,567", wantErr: true},
		{name: "ScaleZeros", input: "1.234,5600", want: "1234.56"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intake.ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, intake.ErrInvalidAmount)
				return
			}

			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}
